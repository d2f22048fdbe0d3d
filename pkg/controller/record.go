package controller

import (
	"fmt"
	"sync"

	"github.com/edgehub-net/edgehub/pkg/connector"
)

// stepResult is the settled outcome of one lifecycle step.
type stepResult struct {
	payload interface{}
	err     error
}

// record is the controller-held state for one connector slot. Each
// record owns a serial mailbox: lifecycle steps enqueued on the slot
// run FIFO on a single worker goroutine, so at most one step is in
// flight per slot and a failed step never blocks the next one.
type record struct {
	id       string
	category Category

	mu               sync.Mutex
	instance         connector.Connector
	actionPending    bool
	lastResult       interface{}
	handlersAttached bool

	steps chan *step
	once  sync.Once
}

type step struct {
	run  func() stepResult
	done chan stepResult
}

// mailboxDepth bounds how many steps can be queued on one slot before
// enqueue blocks. Lifecycle commands are rare; the bound only guards
// against a runaway issuer.
const mailboxDepth = 64

func newRecord(cat Category, id string) *record {
	r := &record{
		id:       id,
		category: cat,
		steps:    make(chan *step, mailboxDepth),
	}
	go r.loop()
	return r
}

// loop is the slot worker. It runs queued steps one at a time for the
// life of the record.
func (r *record) loop() {
	for s := range r.steps {
		s.done <- runStep(s.run)
	}
}

// runStep executes one step, converting a panic into a failed result
// so the worker survives and the next queued step still runs.
func runStep(fn func() stepResult) (res stepResult) {
	defer func() {
		if p := recover(); p != nil {
			res = stepResult{err: fmt.Errorf("lifecycle step panic: %v", p)}
		}
	}()
	return fn()
}

// enqueue appends a step to the slot mailbox and returns the channel
// its settled result is delivered on.
func (r *record) enqueue(fn func() stepResult) <-chan stepResult {
	done := make(chan stepResult, 1)
	r.steps <- &step{run: fn, done: done}
	return done
}

// close shuts the slot worker down. The controller keeps every record
// for its whole lifetime and never calls this; only tests do.
func (r *record) close() {
	r.once.Do(func() { close(r.steps) })
}

// currentInstance returns the instance held by the slot, if any.
func (r *record) currentInstance() connector.Connector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance
}

// pending reports whether a lifecycle step is in flight on the slot.
func (r *record) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actionPending
}

// settle records the outcome of a finished step.
func (r *record) settle(res stepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionPending = false
	if res.err != nil {
		r.lastResult = res.err.Error()
	} else {
		r.lastResult = res.payload
	}
}
