// Package testutil provides scripted connector fakes for controller
// and pipeline tests.
package testutil

import (
	"context"
	"sync"

	"github.com/edgehub-net/edgehub/pkg/connector"
)

// FakeConnector is a scriptable connector. Hooks count invocations
// and can be made to fail, block, or delay to exercise pipeline
// ordering.
type FakeConnector struct {
	*connector.Base

	mu        sync.Mutex
	initCalls int
	stopCalls int

	// FailInit / FailStop make the corresponding hook fail.
	FailInit error
	FailStop error

	// HoldInit, when non-nil, blocks the init hook until the channel
	// is closed. Used to test queueing behind an in-flight step.
	HoldInit chan struct{}

	// LogSink collects payloads passed to AddLogData.
	logSink []connector.Payload
}

// NewFake constructs a fake connector with working lifecycle hooks.
func NewFake(id string) *FakeConnector {
	f := &FakeConnector{Base: connector.NewBase(id)}
	f.BindHooks(f.start, f.shutdown)
	return f
}

func (f *FakeConnector) start(ctx context.Context, config connector.Payload) (interface{}, error) {
	f.mu.Lock()
	f.initCalls++
	hold := f.HoldInit
	err := f.FailInit
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	return connector.Payload{"started": true}, nil
}

func (f *FakeConnector) shutdown(ctx context.Context) (interface{}, error) {
	f.mu.Lock()
	f.stopCalls++
	err := f.FailStop
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return connector.Payload{"stopped": true}, nil
}

// AddLogData records the payload so tests can inspect reply
// envelopes.
func (f *FakeConnector) AddLogData(payload connector.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logSink = append(f.logSink, payload)
}

// InitCalls returns how many times the start hook ran.
func (f *FakeConnector) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

// StopCalls returns how many times the shutdown hook ran.
func (f *FakeConnector) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// LogSink returns a copy of the payloads delivered via AddLogData.
func (f *FakeConnector) LogSink() []connector.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]connector.Payload, len(f.logSink))
	copy(out, f.logSink)
	return out
}

// Registry tracks every fake a resolver constructed, keyed by id, so
// tests can reach instances the controller created.
type Registry struct {
	mu    sync.Mutex
	fakes map[string][]*FakeConnector

	// Configure is applied to each fake before it is returned.
	Configure func(f *FakeConnector)
}

// NewRegistry creates an empty fake registry.
func NewRegistry() *Registry {
	return &Registry{fakes: map[string][]*FakeConnector{}}
}

// Constructor returns a connector.Constructor that builds tracked
// fakes.
func (r *Registry) Constructor() connector.Constructor {
	return func(id string) connector.Connector {
		f := NewFake(id)
		r.mu.Lock()
		if r.Configure != nil {
			r.Configure(f)
		}
		r.fakes[id] = append(r.fakes[id], f)
		r.mu.Unlock()
		return f
	}
}

// Resolve is a controller TypeResolver serving the tracked
// constructor for every key.
func (r *Registry) Resolve(key string) (connector.Constructor, error) {
	return r.Constructor(), nil
}

// Latest returns the most recently constructed fake for an id.
func (r *Registry) Latest(id string) *FakeConnector {
	r.mu.Lock()
	defer r.mu.Unlock()
	fakes := r.fakes[id]
	if len(fakes) == 0 {
		return nil
	}
	return fakes[len(fakes)-1]
}

// All returns every fake constructed for an id, oldest first.
func (r *Registry) All(id string) []*FakeConnector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*FakeConnector, len(r.fakes[id]))
	copy(out, r.fakes[id])
	return out
}
