package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/gsdump/internal/core"
)

// registry maps plugin names to factories of one plugin type.
type registry[T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]func() T
}

func newRegistry[T any](kind string) *registry[T] {
	return &registry[T]{kind: kind, factories: make(map[string]func() T)}
}

func (r *registry[T]) register(name string, factory func() T) {
	if name == "" {
		panic(fmt.Sprintf("plugin: %s registered with empty name", r.kind))
	}
	if factory == nil {
		panic(fmt.Sprintf("plugin: %s %q registered with nil factory", r.kind, name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("plugin: %s %q registered twice", r.kind, name))
	}
	r.factories[name] = factory
}

func (r *registry[T]) get(name string) (func() T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", core.ErrPluginNotFound, r.kind, name)
	}
	return f, nil
}

func (r *registry[T]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registration. Used by tests.
func (r *registry[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]func() T)
}

var (
	capturerReg = newRegistry[Capturer]("capturer")
	reporterReg = newRegistry[Reporter]("reporter")
)

// RegisterCapturer registers a capturer factory. It panics on an empty or
// duplicate name so that wiring mistakes surface at start-up.
func RegisterCapturer(name string, factory func() Capturer) { capturerReg.register(name, factory) }

// GetCapturerFactory returns the factory registered under name.
func GetCapturerFactory(name string) (func() Capturer, error) { return capturerReg.get(name) }

// ListCapturers returns the registered capturer names, sorted.
func ListCapturers() []string { return capturerReg.list() }

// RegisterReporter registers a reporter factory.
func RegisterReporter(name string, factory func() Reporter) { reporterReg.register(name, factory) }

// GetReporterFactory returns the factory registered under name.
func GetReporterFactory(name string) (func() Reporter, error) { return reporterReg.get(name) }

// ListReporters returns the registered reporter names, sorted.
func ListReporters() []string { return reporterReg.list() }
