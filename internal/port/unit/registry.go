package unit

import (
	"fmt"
	"sync"
)

// Factory is a constructor function that creates a new Runner instance.
type Factory func(config map[string]string) (Runner, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a unit factory available by class tag.
// It is typically called from an init() function in the unit package.
// Dispatch is data-driven through this table; there is no reflection.
func Register(class string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[class]; exists {
		panic(fmt.Sprintf("unit: duplicate registration for %q", class))
	}
	factories[class] = factory
}

// New creates a new Runner by class tag using the registered factory.
func New(class string, config map[string]string) (Runner, error) {
	mu.RLock()
	factory, ok := factories[class]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unit: unknown class %q", class)
	}
	return factory(config)
}

// Available returns the class tags of all registered units.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	classes := make([]string, 0, len(factories))
	for class := range factories {
		classes = append(classes, class)
	}
	return classes
}
