// Package nats bridges the in-process event bus onto NATS JetStream so
// external consumers can follow agent lifecycles without polling the API.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/AgentForge/internal/bus"
	"github.com/Strob0t/AgentForge/internal/domain/event"
)

const streamName = "AGENTFORGE"

// Bridge republishes bus messages to JetStream subjects. The bridge is an
// ordinary bus subscriber; a NATS outage slows nothing, the bus budget cuts
// it off like any other handler.
type Bridge struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

// Connect establishes a connection to NATS and ensures the event stream exists.
func Connect(ctx context.Context, url string, log *slog.Logger) (*Bridge, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"agents.events.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	log.Info("nats connected", "url", url, "stream", streamName)
	return &Bridge{nc: nc, js: js, log: log}, nil
}

// Attach subscribes the bridge to every bus message.
func (br *Bridge) Attach(b *bus.Bus) {
	b.SubscribeAll(br.forward)
}

func (br *Bridge) forward(msg event.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		br.log.Error("event marshal failed", "type", msg.Type, "error", err)
		return
	}
	// agent.spawned becomes agents.events.agent.spawned.
	subject := "agents.events." + string(msg.Type)
	if _, err := br.js.PublishAsync(subject, data); err != nil {
		br.log.Error("nats publish failed", "subject", subject, "error", err)
	}
}

// Close shuts down the NATS connection.
func (br *Bridge) Close() error {
	br.nc.Close()
	return nil
}
