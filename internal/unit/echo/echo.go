// Package echo provides a trivial built-in unit used for smoke tests and
// demos: it repeats a message, reporting progress between repetitions.
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/AgentForge/internal/port/unit"
)

func init() {
	unit.Register("echo", func(_ map[string]string) (unit.Runner, error) {
		return &Runner{}, nil
	})
}

type payload struct {
	Message string `json:"message"`
	Repeat  int    `json:"repeat"`
	DelayMS int    `json:"delay_ms"`
}

// Runner repeats the payload message.
type Runner struct{}

// Run echoes the message Repeat times with an optional delay between
// repetitions, reporting progress after each one.
func (r *Runner) Run(ctx context.Context, req unit.Request, rep unit.Reporter) (unit.Result, error) {
	var p payload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return unit.Result{}, fmt.Errorf("echo payload: %w", err)
		}
	}
	if p.Message == "" {
		p.Message = "hello"
	}
	if p.Repeat < 1 {
		p.Repeat = 1
	}

	var out strings.Builder
	for i := range p.Repeat {
		select {
		case <-ctx.Done():
			return unit.Result{}, ctx.Err()
		default:
		}

		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(p.Message)

		if rep != nil {
			rep.Progress(ctx, float64(i+1)/float64(p.Repeat), fmt.Sprintf("repetition %d/%d", i+1, p.Repeat))
		}
		if p.DelayMS > 0 && i < p.Repeat-1 {
			select {
			case <-ctx.Done():
				return unit.Result{}, ctx.Err()
			case <-time.After(time.Duration(p.DelayMS) * time.Millisecond):
			}
		}
	}

	return unit.Result{Output: out.String()}, nil
}
