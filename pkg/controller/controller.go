// Package controller implements the gateway core: a supervised
// runtime that owns the cloud and device connector collections,
// serializes lifecycle operations per slot, routes data and log
// events between connectors, executes the cloud command-and-control
// protocol, and persists config changes back to disk.
package controller

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/util"
)

// TypeResolver maps a resolved module path or registry key to a
// connector constructor.
type TypeResolver func(key string) (connector.Constructor, error)

// Config carries controller construction options.
type Config struct {
	// ModuleBasePath resolves relative connector-type values:
	// entries beginning with "./" are joined with it before being
	// handed to Resolve. Other values pass through verbatim.
	ModuleBasePath string

	// Resolve loads connector constructors for the type registry.
	// Required; the builtin package provides the standard resolver.
	Resolve TypeResolver
}

// MaintenanceEvent is delivered to maintenance subscribers after the
// controller has stopped all connectors in response to a
// maintenance_action command.
type MaintenanceEvent struct {
	Command   interface{}
	RequestID string
}

// Snapshot describes one instantiated connector slot.
type Snapshot struct {
	Instance      connector.Connector
	ActionPending bool
	LastResult    interface{}
	Type          string
	Config        interface{}
}

// Controller is the gateway core runtime.
type Controller struct {
	cfg      Config
	provider util.LoggerProvider
	log      logrus.FieldLogger

	mu       sync.Mutex
	factory  *connector.Factory
	store    *Store
	writer   *serialWriter
	records  map[Category]map[string]*record
	shutdown bool
	active   bool

	maintenanceSubs []func(MaintenanceEvent)
}

// New constructs an inactive controller. The provider may be nil, in
// which case connectors keep their no-op loggers and the controller
// logs through the global logger.
func New(cfg Config, provider util.LoggerProvider) *Controller {
	if cfg.Resolve == nil {
		cfg.Resolve = func(key string) (connector.Constructor, error) {
			return nil, fmt.Errorf("%w: no resolver configured for %q", util.ErrUnknownType, key)
		}
	}
	c := &Controller{
		cfg:      cfg,
		provider: provider,
		log:      util.WithField("component", "controller"),
		store:    NewStore(),
		records: map[Category]map[string]*record{
			CategoryCloud:  {},
			CategoryDevice: {},
		},
	}
	c.factory = connector.NewFactory(nil, provider)
	return c
}

// IsActive reports whether the controller reached ACTIVE through a
// successful Init.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// OnMaintenance registers a maintenance subscriber. Registration is
// synchronous; subscribers are invoked after a maintenance stop
// completes.
func (c *Controller) OnMaintenance(fn func(MaintenanceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maintenanceSubs = append(c.maintenanceSubs, fn)
}

// Init reads, validates, and loads the config document at configPath,
// rebuilds the type registry, and starts every configured connector
// in parallel. The controller transitions to ACTIVE only if every
// connector starts; otherwise Init fails with ErrStartupFailed. The
// shutdown gate is cleared on entry, so Init may be called again
// after a Stop. An empty requestID gets a generated correlation id.
func (c *Controller) Init(ctx context.Context, configPath, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := c.log.WithField("request", requestID)
	log.Infof("initializing gateway from %s", configPath)

	c.mu.Lock()
	c.shutdown = false
	c.mu.Unlock()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrConfigRead, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.store.Load(doc)
	c.writer = newSerialWriter(configPath, c.store.Marshal, c.log)
	c.mu.Unlock()

	c.reinitFactory()

	type pendingInit struct {
		cat  Category
		id   string
		done <-chan stepResult
	}
	var pending []pendingInit
	for _, cat := range Categories() {
		for id := range c.store.Section(cat) {
			r := c.getOrCreateRecord(cat, id)
			pending = append(pending, pendingInit{cat, id, c.enqueueInit(r, requestID)})
		}
	}

	var failed []string
	for _, p := range pending {
		if res := <-p.done; res.err != nil {
			log.Errorf("startup of %s connector %s failed: %v", p.cat, p.id, res.err)
			failed = append(failed, fmt.Sprintf("%s/%s: %v", p.cat, p.id, res.err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", util.ErrStartupFailed, strings.Join(failed, "; "))
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	log.Infof("gateway active with %d connectors", len(pending))
	return nil
}

// Stop sets the shutdown gate and stops every connector in parallel.
// It fails with ErrShutdownFailed unless every stop succeeds.
func (c *Controller) Stop(ctx context.Context, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.log.WithField("request", requestID).Info("stopping gateway")

	c.mu.Lock()
	c.shutdown = true
	c.active = false
	c.mu.Unlock()

	results := c.stopAllSlots(requestID)

	var failed int
	for _, res := range results {
		if res.err != nil {
			failed++
		}
	}
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w != nil {
		w.Flush()
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d connectors failed to stop", util.ErrShutdownFailed, failed)
	}
	return nil
}

// CloudConnectors returns a snapshot of instantiated cloud slots.
func (c *Controller) CloudConnectors() map[string]Snapshot {
	return c.snapshotCategory(CategoryCloud)
}

// DeviceConnectors returns a snapshot of instantiated device slots.
func (c *Controller) DeviceConnectors() map[string]Snapshot {
	return c.snapshotCategory(CategoryDevice)
}

func (c *Controller) snapshotCategory(cat Category) map[string]Snapshot {
	out := map[string]Snapshot{}
	for _, r := range c.categoryRecords(cat) {
		r.mu.Lock()
		inst := r.instance
		snap := Snapshot{
			Instance:      inst,
			ActionPending: r.actionPending,
			LastResult:    r.lastResult,
		}
		r.mu.Unlock()
		if inst == nil {
			continue
		}
		if entry, ok := c.store.Entry(cat, r.id); ok {
			snap.Type, _ = EntryType(entry)
			snap.Config = EntryConfig(entry)
		}
		out[r.id] = snap
	}
	return out
}

// ConnectorReport lists every slot the controller holds with its
// readiness state: WAITING while a lifecycle step is in flight,
// READY otherwise. Shared by list_connectors and the health endpoint.
func (c *Controller) ConnectorReport() []map[string]interface{} {
	var report []map[string]interface{}
	for _, cat := range Categories() {
		for _, r := range c.categoryRecords(cat) {
			state := "READY"
			if r.pending() {
				state = "WAITING"
			}
			report = append(report, map[string]interface{}{
				"id":       r.id,
				"category": string(cat),
				"state":    state,
			})
		}
	}
	return report
}

// getOrCreateRecord returns the slot record for (cat, id), creating
// it (and its worker) on first use. At most one record ever exists
// per slot.
func (c *Controller) getOrCreateRecord(cat Category, id string) *record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[cat][id]; ok {
		return r
	}
	r := newRecord(cat, id)
	c.records[cat][id] = r
	return r
}

// lookupRecord returns the slot record for (cat, id) if one exists.
func (c *Controller) lookupRecord(cat Category, id string) *record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[cat][id]
}

// categoryRecords returns the records of one category.
func (c *Controller) categoryRecords(cat Category) []*record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*record, 0, len(c.records[cat]))
	for _, r := range c.records[cat] {
		out = append(out, r)
	}
	return out
}

// cloudInstances returns the currently instantiated cloud connectors.
func (c *Controller) cloudInstances() []connector.Connector {
	var out []connector.Connector
	for _, r := range c.categoryRecords(CategoryCloud) {
		if inst := r.currentInstance(); inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// enqueueInit queues an init step on the slot. Guards run at step
// entry, not enqueue time: an occupied slot fails AlreadyActive, a
// shut-down gateway fails ShuttingDown, and a slot whose config entry
// has disappeared fails NotConfigured.
func (c *Controller) enqueueInit(r *record, requestID string) <-chan stepResult {
	return r.enqueue(func() stepResult {
		if r.currentInstance() != nil {
			res := stepResult{err: fmt.Errorf("%w: %s/%s", util.ErrAlreadyActive, r.category, r.id)}
			r.settle(res)
			return res
		}
		c.mu.Lock()
		shuttingDown := c.shutdown
		c.mu.Unlock()
		if shuttingDown {
			res := stepResult{err: fmt.Errorf("%w: refusing to start %s/%s", util.ErrShuttingDown, r.category, r.id)}
			r.settle(res)
			return res
		}

		entry, ok := c.store.Entry(r.category, r.id)
		if !ok {
			res := stepResult{err: fmt.Errorf("%w: %s/%s", util.ErrNotConfigured, r.category, r.id)}
			r.settle(res)
			return res
		}
		typeName, _ := EntryType(entry)

		inst, err := c.factory.Create(typeName, r.id)
		if err != nil {
			res := stepResult{err: err}
			r.settle(res)
			return res
		}

		r.mu.Lock()
		r.instance = inst
		r.actionPending = true
		r.handlersAttached = false
		r.mu.Unlock()

		cfg, _ := EntryConfig(entry).(map[string]interface{})
		payload, err := inst.Init(context.Background(), cfg, requestID)
		if err != nil {
			r.mu.Lock()
			r.instance = nil
			r.mu.Unlock()
			res := stepResult{err: err}
			r.settle(res)
			return res
		}

		c.attachHandlers(r, inst)
		res := stepResult{payload: payload}
		r.settle(res)
		return res
	})
}

// enqueueStop queues a stop step on the slot. Whatever the stop hook
// does, the instance is detached and discarded once the step settles.
func (c *Controller) enqueueStop(r *record, requestID string) <-chan stepResult {
	return r.enqueue(func() stepResult {
		inst := r.currentInstance()
		if inst == nil {
			res := stepResult{err: fmt.Errorf("%w: %s/%s", util.ErrNotActive, r.category, r.id)}
			r.settle(res)
			return res
		}

		r.mu.Lock()
		r.actionPending = true
		r.mu.Unlock()

		payload, err := inst.Stop(context.Background(), requestID)

		inst.DetachHandlers()
		r.mu.Lock()
		r.instance = nil
		r.handlersAttached = false
		r.mu.Unlock()

		res := stepResult{payload: payload, err: err}
		r.settle(res)
		return res
	})
}

// attachHandlers wires a freshly started instance into the router.
// Each new instance gets exactly one data and one log handler.
func (c *Controller) attachHandlers(r *record, inst connector.Connector) {
	r.mu.Lock()
	attached := r.handlersAttached
	r.handlersAttached = true
	r.mu.Unlock()
	if attached {
		return
	}

	switch r.category {
	case CategoryDevice:
		inst.OnData(func(payload interface{}) {
			c.fanDeviceData(payload)
		})
	case CategoryCloud:
		inst.OnData(func(payload interface{}) {
			c.handleCloudData(inst, payload)
		})
	}
	inst.OnLog(func(payload connector.Payload) {
		c.fanLog(payload)
	})
}

// stopAllSlots enqueues a stop on every slot in both categories and
// waits for all of them to settle.
func (c *Controller) stopAllSlots(requestID string) []stepResult {
	var chans []<-chan stepResult
	for _, cat := range Categories() {
		for _, r := range c.categoryRecords(cat) {
			chans = append(chans, c.enqueueStop(r, requestID))
		}
	}
	results := make([]stepResult, 0, len(chans))
	for _, ch := range chans {
		results = append(results, <-ch)
	}
	return results
}

// reinitFactory rebuilds the type registry from the config document,
// resolving relative module paths against ModuleBasePath. A type
// whose module cannot be resolved is logged and skipped; creating a
// connector of that type later fails with UnknownType.
func (c *Controller) reinitFactory() {
	types := map[string]connector.Constructor{}
	for name, modulePath := range c.store.Types() {
		key := c.resolveModulePath(modulePath)
		ctor, err := c.cfg.Resolve(key)
		if err != nil {
			c.log.Warnf("connector type %q unresolved (%s): %v", name, key, err)
			continue
		}
		types[name] = ctor
	}
	c.factory.Rebind(types)
}

// resolveModulePath joins "./"-relative module paths with the module
// base path. Other values pass through verbatim.
func (c *Controller) resolveModulePath(modulePath string) string {
	if strings.HasPrefix(modulePath, "./") {
		return path.Join(c.cfg.ModuleBasePath, modulePath)
	}
	return modulePath
}

// scheduleConfigWrite requests one serialized write of the current
// document.
func (c *Controller) scheduleConfigWrite() {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w != nil {
		w.Schedule()
	}
}

// emitMaintenance delivers the maintenance signal to subscribers.
func (c *Controller) emitMaintenance(ev MaintenanceEvent) {
	c.mu.Lock()
	subs := make([]func(MaintenanceEvent), len(c.maintenanceSubs))
	copy(subs, c.maintenanceSubs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
