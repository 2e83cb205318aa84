// Package stage maps stage names to factories so pipelines can be built
// from configuration. Built-in stages register themselves from the
// plugins tree at program start.
package stage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pktpipe/pktdump/internal/pipeline"
)

// ErrUnknownStage is returned by New for an unregistered stage name.
var ErrUnknownStage = errors.New("pktdump: unknown stage")

// Factory builds one stage instance from its config options. Option
// decoding (mapstructure) is the factory's job.
type Factory func(options map[string]interface{}) (pipeline.Stage, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register binds a factory to a stage name. Later registrations with the
// same name win, which lets tests swap in instrumented stages.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New builds the named stage from its options.
func New(name string, options map[string]interface{}) (pipeline.Stage, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	s, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", name, err)
	}
	return s, nil
}

// Names lists the registered stage names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
