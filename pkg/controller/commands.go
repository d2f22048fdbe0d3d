package controller

import (
	"fmt"
	"time"

	"github.com/edgehub-net/edgehub/pkg/audit"
	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/util"
)

// execCommand acknowledges and dispatches one cloud command. The
// return value reports whether the command mutated the config
// document; the caller coalesces mutations into a single scheduled
// write per batch.
func (c *Controller) execCommand(req *Request) bool {
	req.Ack()
	req.Logf("info", "executing %s", req.Action())

	switch req.Action() {
	case "stop_connector":
		c.execStopConnector(req)
	case "start_connector":
		c.execStartConnector(req)
	case "restart_connector":
		c.execRestartConnector(req)
	case "stop_all_connectors":
		c.execLifecycleAll(req, false, true)
	case "start_all_connectors":
		c.execLifecycleAll(req, true, false)
	case "restart_all_connectors":
		c.execLifecycleAll(req, true, true)
	case "list_connectors":
		c.execListConnectors(req)
	case "get_connector_config":
		c.execGetConnectorConfig(req)
	case "send_data":
		c.execSendData(req)
	case "update_config":
		return c.execUpdateConfig(req)
	case "delete_config":
		return c.execDeleteConfig(req)
	case "update_connector_type":
		return c.execUpdateConnectorType(req)
	case "maintenance_action":
		c.execMaintenanceAction(req)
	default:
		req.CompleteError("%v: %s", util.ErrUnknownAction, req.Action())
		c.auditCommand(req, "", "", time.Now(), util.ErrUnknownAction)
	}
	return false
}

// slotTarget parses and validates the category/id pair of a
// slot-scoped command. On failure the request is completed with the
// validation error.
func (c *Controller) slotTarget(req *Request) (Category, string, bool) {
	cat, err := ParseCategory(req.StringArg("category"))
	if err != nil {
		req.CompleteError("%v", err)
		return "", "", false
	}
	id := req.StringArg("id")
	if id == "" {
		req.CompleteError("%v: id is required", util.ErrInvalidID)
		return "", "", false
	}
	return cat, id, true
}

func (c *Controller) execStopConnector(req *Request) {
	start := time.Now()
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return
	}
	r := c.lookupRecord(cat, id)
	if r == nil {
		req.CompleteError("no %s connector %q", cat, id)
		c.auditCommand(req, string(cat), id, start, util.ErrNotActive)
		return
	}
	done := c.enqueueStop(r, req.RequestID())
	go func() {
		res := <-done
		c.completeStep(req, res)
		c.auditCommand(req, string(cat), id, start, res.err)
	}()
}

func (c *Controller) execStartConnector(req *Request) {
	start := time.Now()
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return
	}
	if _, ok := c.store.Entry(cat, id); !ok {
		req.CompleteError("no configuration for %s connector %q", cat, id)
		c.auditCommand(req, string(cat), id, start, util.ErrNotConfigured)
		return
	}
	done := c.enqueueInit(c.getOrCreateRecord(cat, id), req.RequestID())
	go func() {
		res := <-done
		c.completeStep(req, res)
		c.auditCommand(req, string(cat), id, start, res.err)
	}()
}

// execRestartConnector enqueues stop then init without awaiting
// either; the slot mailbox supplies the ordering.
func (c *Controller) execRestartConnector(req *Request) {
	start := time.Now()
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return
	}
	r := c.getOrCreateRecord(cat, id)
	stopDone := c.enqueueStop(r, req.RequestID())
	initDone := c.enqueueInit(r, req.RequestID())
	go func() {
		<-stopDone
		res := <-initDone
		c.completeStep(req, res)
		c.auditCommand(req, string(cat), id, start, res.err)
	}()
}

// execLifecycleAll handles the three *_all_connectors actions. The
// optional category argument narrows the sweep; an invalid category
// fails the command.
func (c *Controller) execLifecycleAll(req *Request, doInit, doStop bool) {
	start := time.Now()
	cats := Categories()
	if raw := req.StringArg("category"); raw != "" {
		cat, err := ParseCategory(raw)
		if err != nil {
			req.CompleteError("%v", err)
			return
		}
		cats = []Category{cat}
	}

	type slotOutcome struct {
		cat  Category
		id   string
		done <-chan stepResult
	}
	var outcomes []slotOutcome
	for _, cat := range cats {
		if doStop {
			for _, r := range c.categoryRecords(cat) {
				outcomes = append(outcomes, slotOutcome{cat, r.id, c.enqueueStop(r, req.RequestID())})
			}
		}
		if doInit {
			for id := range c.store.Section(cat) {
				r := c.getOrCreateRecord(cat, id)
				outcomes = append(outcomes, slotOutcome{cat, id, c.enqueueInit(r, req.RequestID())})
			}
		}
	}

	go func() {
		results := map[string]interface{}{}
		var firstErr error
		for _, o := range outcomes {
			res := <-o.done
			key := fmt.Sprintf("%s/%s", o.cat, o.id)
			if res.err != nil {
				results[key] = res.err.Error()
				if firstErr == nil {
					firstErr = res.err
				}
			} else {
				results[key] = "ok"
			}
		}
		req.CompleteOk(results)
		c.auditCommand(req, req.StringArg("category"), "", start, firstErr)
	}()
}

func (c *Controller) execListConnectors(req *Request) {
	filter := ""
	if raw := req.StringArg("category"); raw != "" {
		cat, err := ParseCategory(raw)
		if err != nil {
			req.CompleteError("%v", err)
			return
		}
		filter = string(cat)
	}

	var report []map[string]interface{}
	for _, row := range c.ConnectorReport() {
		if filter != "" && row["category"] != filter {
			continue
		}
		report = append(report, row)
	}
	req.CompleteOk(report)
}

func (c *Controller) execGetConnectorConfig(req *Request) {
	cat, err := ParseCategory(req.StringArg("category"))
	if err != nil {
		req.CompleteError("%v", err)
		return
	}

	if id := req.StringArg("id"); id != "" {
		entry, ok := c.store.Entry(cat, id)
		if !ok {
			req.CompleteError("no configuration for %s connector %q", cat, id)
			return
		}
		req.CompleteOk(sanitizeEntry(entry))
		return
	}

	section := c.store.Section(cat)
	for id, entry := range section {
		section[id] = sanitizeEntry(entry)
	}
	req.CompleteOk(section)
}

// sanitizeEntry redacts credentials from known connector types before
// a config entry leaves the gateway.
func sanitizeEntry(entry interface{}) interface{} {
	typeName, _ := EntryType(entry)
	cfg, ok := EntryConfig(entry).(map[string]interface{})
	if !ok {
		return entry
	}
	switch typeName {
	case "CncCloud":
		if _, ok := cfg["password"]; ok {
			cfg["password"] = ""
		}
	case "Http":
		if headers, ok := cfg["headers"].(map[string]interface{}); ok {
			if _, ok := headers["authorization"]; ok {
				headers["authorization"] = ""
			}
		}
	}
	return entry
}

func (c *Controller) execSendData(req *Request) {
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return
	}
	r := c.lookupRecord(cat, id)
	if r == nil {
		req.CompleteError("no %s connector %q", cat, id)
		return
	}
	inst := r.currentInstance()
	if inst == nil {
		req.CompleteError("%v: %s/%s", util.ErrNotActive, cat, id)
		return
	}
	data, _ := req.Arg("data")
	payload, ok := data.(map[string]interface{})
	if !ok {
		req.CompleteError("%v: data must be a mapping", util.ErrInvalidPayload)
		return
	}
	if err := inst.AddData(connector.Payload(payload), req.RequestID()); err != nil {
		req.CompleteError("%v", err)
		return
	}
	req.CompleteOk(nil)
}

func (c *Controller) execUpdateConfig(req *Request) bool {
	start := time.Now()
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return false
	}
	cfg, ok := req.Arg("config")
	if !ok {
		req.CompleteError("%v: config is required", util.ErrInvalidConfig)
		return false
	}
	c.store.SetEntry(cat, id, cfg)
	req.CompleteOk(nil)
	c.auditCommand(req, string(cat), id, start, nil)
	return true
}

func (c *Controller) execDeleteConfig(req *Request) bool {
	start := time.Now()
	cat, id, ok := c.slotTarget(req)
	if !ok {
		return false
	}
	c.store.DeleteEntry(cat, id)
	req.CompleteOk(nil)
	c.auditCommand(req, string(cat), id, start, nil)
	return true
}

func (c *Controller) execUpdateConnectorType(req *Request) bool {
	start := time.Now()
	typeName := req.StringArg("type")
	if typeName == "" {
		req.CompleteError("%v: type is required", util.ErrInvalidType)
		return false
	}
	modulePath := req.StringArg("modulePath")
	if modulePath == "" {
		req.CompleteError("modulePath is required")
		return false
	}
	c.store.SetType(typeName, modulePath)
	c.reinitFactory()
	req.CompleteOk(nil)
	c.auditCommand(req, "", typeName, start, nil)
	return true
}

// execMaintenanceAction gracefully stops every connector, leaves the
// shutdown gate set, and hands the maintenance command to the
// embedder through the maintenance signal.
func (c *Controller) execMaintenanceAction(req *Request) {
	start := time.Now()
	command, _ := req.Arg("command")

	c.mu.Lock()
	c.shutdown = true
	c.active = false
	c.mu.Unlock()

	go func() {
		c.stopAllSlots(req.RequestID())
		c.emitMaintenance(MaintenanceEvent{Command: command, RequestID: req.RequestID()})
		req.CompleteOk(nil)
		c.auditCommand(req, "", "", start, nil)
	}()
}

// completeStep converts a settled lifecycle step into a request
// completion.
func (c *Controller) completeStep(req *Request, res stepResult) {
	if res.err != nil {
		req.CompleteError("%v", res.err)
		return
	}
	req.CompleteOk(res.payload)
}

// auditCommand records one executed command in the audit trail.
func (c *Controller) auditCommand(req *Request, category, id string, start time.Time, err error) {
	ev := audit.NewEvent(req.Action(), req.RequestID()).
		WithTarget(category, id).
		WithDuration(time.Since(start))
	if err != nil {
		ev = ev.WithError(err)
	} else {
		ev = ev.WithSuccess()
	}
	if logErr := audit.Log(ev); logErr != nil {
		c.log.Warnf("audit write failed: %v", logErr)
	}
}
