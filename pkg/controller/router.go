package controller

import (
	"github.com/edgehub-net/edgehub/pkg/connector"
)

// fanDeviceData delivers a device-emitted data payload to every
// currently instantiated cloud connector. Delivery is best effort: a
// failing cloud connector is logged and skipped so it cannot starve
// the others.
func (c *Controller) fanDeviceData(payload interface{}) {
	data, ok := payload.(connector.Payload)
	if !ok {
		c.log.Warnf("dropping device data event: payload is not a mapping (%T)", payload)
		return
	}
	for _, inst := range c.cloudInstances() {
		if err := inst.AddData(data, noRequestID); err != nil {
			c.log.Warnf("data fanout to %s failed: %v", inst.ID(), err)
		}
	}
}

// fanLog delivers a log payload from any connector to every currently
// instantiated cloud connector.
func (c *Controller) fanLog(payload connector.Payload) {
	for _, inst := range c.cloudInstances() {
		inst.AddLogData(payload)
	}
}

// handleCloudData interprets a cloud-emitted data event as a batch of
// commands. Payloads that are not non-empty sequences are dropped
// with a warning, as are elements that are not mappings with a string
// action; the surviving elements still execute. One config write is
// scheduled per batch when any command mutated the document.
func (c *Controller) handleCloudData(source connector.Connector, payload interface{}) {
	batch, ok := payload.([]interface{})
	if !ok || len(batch) == 0 {
		c.log.Warnf("dropping command payload from %s: expected a non-empty sequence, got %T", source.ID(), payload)
		return
	}

	mutated := false
	for _, el := range batch {
		cmd, ok := el.(connector.Payload)
		if !ok {
			c.log.Warnf("dropping command element from %s: not a mapping (%T)", source.ID(), el)
			continue
		}
		action, ok := cmd["action"].(string)
		if !ok || action == "" {
			c.log.Warnf("dropping command element from %s: missing action", source.ID())
			continue
		}
		if c.execCommand(newRequest(cmd, source, c.log)) {
			mutated = true
		}
	}

	if mutated {
		c.scheduleConfigWrite()
	}
}
