// Package connector defines the lifecycle contract shared by every
// cloud and device connector, and the base implementations concrete
// connector types build on.
//
// A connector is a stateful bridge to one peer: a cloud control
// channel or a local device. It moves between INACTIVE and ACTIVE
// only through successful Init/Stop calls, queues outbound payloads
// in an internal buffer, and surfaces inbound traffic through data
// and log events.
package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// Payload is an opaque JSON-style mapping exchanged with connectors.
type Payload = map[string]interface{}

// DataHandler receives data events emitted by a connector. Device
// connectors emit reading mappings; cloud connectors emit command
// batches (sequences), so the payload is untyped here.
type DataHandler func(payload interface{})

// LogHandler receives log events emitted by a connector.
type LogHandler func(payload Payload)

// StartHook is the subtype start routine invoked by Init. The
// returned payload becomes the init completion result.
type StartHook func(ctx context.Context, config Payload) (interface{}, error)

// ShutdownHook is the subtype stop routine invoked by Stop.
type ShutdownHook func(ctx context.Context) (interface{}, error)

// Connector is the contract every cloud and device connector
// implements.
type Connector interface {
	// ID returns the connector id, unique within its category.
	ID() string

	// IsActive reports whether the connector is in the ACTIVE state.
	IsActive() bool

	// Init validates config, runs the subtype start hook, and on
	// success transitions to ACTIVE. A connector without a start
	// hook fails with ErrNotImplemented.
	Init(ctx context.Context, config Payload, requestID string) (interface{}, error)

	// Stop runs the subtype shutdown hook. The connector is INACTIVE
	// after Stop regardless of the hook outcome.
	Stop(ctx context.Context, requestID string) (interface{}, error)

	// AddData enqueues an outbound payload. Fails with
	// ErrInvalidPayload when payload is not a mapping.
	AddData(payload Payload, requestID string) error

	// AddLogData enqueues an outbound log payload. The base
	// implementation is a no-op; cloud connectors override it to
	// carry gateway logs upstream.
	AddLogData(payload Payload)

	// OnData installs the data event handler. A connector carries at
	// most one; installing replaces the previous handler.
	OnData(h DataHandler)

	// OnLog installs the log event handler.
	OnLog(h LogHandler)

	// DetachHandlers removes both event handlers.
	DetachHandlers()

	// SetLogger attaches a contextual logger.
	SetLogger(l logrus.FieldLogger)
}

// Base implements the shared connector state machine. Concrete
// connector types embed a *Base and bind their lifecycle hooks with
// BindHooks.
type Base struct {
	id string

	mu          sync.Mutex
	active      bool
	buffer      []Payload
	dataHandler DataHandler
	logHandler  LogHandler
	log         logrus.FieldLogger

	startHook    StartHook
	shutdownHook ShutdownHook
}

// NewBase creates a connector base for the given id. The logger
// discards output until SetLogger is called.
func NewBase(id string) *Base {
	return &Base{
		id:  id,
		log: util.NopLogger(),
	}
}

// BindHooks supplies the subtype lifecycle routines. Without bound
// hooks Init and Stop fail with ErrNotImplemented.
func (b *Base) BindHooks(start StartHook, shutdown ShutdownHook) {
	b.startHook = start
	b.shutdownHook = shutdown
}

// ID returns the connector id.
func (b *Base) ID() string {
	return b.id
}

// IsActive reports whether the connector is ACTIVE.
func (b *Base) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetLogger attaches a contextual logger.
func (b *Base) SetLogger(l logrus.FieldLogger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l != nil {
		b.log = l
	}
}

// Logger returns the attached logger for use by subtypes.
func (b *Base) Logger() logrus.FieldLogger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log
}

// Init validates config and runs the start hook. On success the
// connector transitions to ACTIVE and the hook result is returned;
// on failure the connector stays INACTIVE.
func (b *Base) Init(ctx context.Context, config Payload, requestID string) (interface{}, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config must be a mapping", util.ErrInvalidConfig)
	}
	if b.startHook == nil {
		return nil, fmt.Errorf("%w: %s has no start hook", util.ErrNotImplemented, b.id)
	}

	result, err := b.startHook(ctx, config)

	b.mu.Lock()
	b.active = err == nil
	log := b.log
	b.mu.Unlock()

	if err != nil {
		log.Errorf("init failed (request %s): %v", requestID, err)
		return nil, err
	}
	log.Infof("connector active (request %s)", requestID)
	return result, nil
}

// Stop runs the shutdown hook. The connector is INACTIVE after Stop
// on both the success and the failure path.
func (b *Base) Stop(ctx context.Context, requestID string) (interface{}, error) {
	b.mu.Lock()
	b.active = false
	log := b.log
	b.mu.Unlock()

	if b.shutdownHook == nil {
		return nil, fmt.Errorf("%w: %s has no shutdown hook", util.ErrNotImplemented, b.id)
	}

	result, err := b.shutdownHook(ctx)
	if err != nil {
		log.Errorf("stop failed (request %s): %v", requestID, err)
		return nil, err
	}
	log.Infof("connector stopped (request %s)", requestID)
	return result, nil
}

// AddData appends an outbound payload to the buffer. The buffer is
// unbounded here; connector types that flush to a transport drain it
// with TakeQueued.
func (b *Base) AddData(payload Payload, requestID string) error {
	if payload == nil {
		return fmt.Errorf("%w: payload must be a mapping", util.ErrInvalidPayload)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, payload)
	return nil
}

// AddLogData is a no-op on the base type. Cloud connectors override
// it to queue log payloads for upstream delivery.
func (b *Base) AddLogData(payload Payload) {}

// TakeQueued removes and returns all buffered outbound payloads.
func (b *Base) TakeQueued() []Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	queued := b.buffer
	b.buffer = nil
	return queued
}

// QueuedCount returns the number of buffered outbound payloads.
func (b *Base) QueuedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// OnData installs the data event handler.
func (b *Base) OnData(h DataHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataHandler = h
}

// OnLog installs the log event handler.
func (b *Base) OnLog(h LogHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logHandler = h
}

// DetachHandlers removes both event handlers.
func (b *Base) DetachHandlers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataHandler = nil
	b.logHandler = nil
}

// EmitData delivers a data event to the installed handler, if any.
// Subtypes call this when inbound traffic arrives.
func (b *Base) EmitData(payload interface{}) {
	b.mu.Lock()
	h := b.dataHandler
	b.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

// EmitLog delivers a log event to the installed handler, if any.
func (b *Base) EmitLog(payload Payload) {
	b.mu.Lock()
	h := b.logHandler
	b.mu.Unlock()
	if h != nil {
		h(payload)
	}
}
