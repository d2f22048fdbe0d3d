package controller

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edgehub-net/edgehub/pkg/connector"
)

// noRequestID stands in for commands issued without a requestId.
const noRequestID = "na"

// Request binds one decoded cloud command to its reply channel: the
// cloud connector that carried it. All request-scoped logging and the
// final completion envelope flow back through that connector's
// outbound log queue.
type Request struct {
	cmd       connector.Payload
	action    string
	requestID string
	source    connector.Connector
	log       logrus.FieldLogger
}

// newRequest wraps a decoded command. A missing requestId is
// substituted with "na".
func newRequest(cmd connector.Payload, source connector.Connector, log logrus.FieldLogger) *Request {
	requestID := noRequestID
	if id, ok := cmd["requestId"].(string); ok && id != "" {
		requestID = id
	}
	action, _ := cmd["action"].(string)
	return &Request{
		cmd:       cmd,
		action:    action,
		requestID: requestID,
		source:    source,
		log:       log.WithField("request", requestID),
	}
}

// Action returns the command action.
func (r *Request) Action() string {
	return r.action
}

// RequestID returns the correlation id ("na" when the issuer sent
// none).
func (r *Request) RequestID() string {
	return r.requestID
}

// Arg returns a raw command argument.
func (r *Request) Arg(key string) (interface{}, bool) {
	v, ok := r.cmd[key]
	return v, ok
}

// StringArg returns a command argument coerced to string, or "" when
// absent or not a string.
func (r *Request) StringArg(key string) string {
	s, _ := r.cmd[key].(string)
	return s
}

// Ack acknowledges receipt of the command to the issuer.
func (r *Request) Ack() {
	r.send(connector.Payload{
		"requestId": r.requestID,
		"qos":       1,
		"data": connector.Payload{
			"type":   "ack",
			"action": r.action,
		},
	})
}

// Logf logs a request-scoped message locally and echoes it to the
// issuer as a log envelope. Level "info" travels at qos 0, every
// other level at qos 1.
func (r *Request) Logf(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "error":
		r.log.Error(msg)
	case "warn":
		r.log.Warn(msg)
	case "debug":
		r.log.Debug(msg)
	default:
		r.log.Info(msg)
	}

	qos := 1
	if level == "info" {
		qos = 0
	}
	r.send(connector.Payload{
		"requestId": r.requestID,
		"qos":       qos,
		"data": connector.Payload{
			"type":    "log",
			"message": fmt.Sprintf("[%s] [%s] %s", level, r.requestID, msg),
		},
	})
}

// CompleteOk reports successful completion to the issuer. A nil
// response is sent as an empty mapping.
func (r *Request) CompleteOk(response interface{}) {
	if response == nil {
		response = connector.Payload{}
	}
	r.send(connector.Payload{
		"requestId": r.requestID,
		"qos":       1,
		"data": connector.Payload{
			"type":      "complete",
			"hasErrors": false,
			"response":  response,
		},
	})
}

// CompleteError reports failed completion to the issuer, carrying the
// formatted message, and echoes an error-level log record.
func (r *Request) CompleteError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Logf("error", "%s", msg)
	r.send(connector.Payload{
		"requestId": r.requestID,
		"qos":       1,
		"data": connector.Payload{
			"type":      "complete",
			"hasErrors": true,
			"message":   msg,
		},
	})
}

func (r *Request) send(envelope connector.Payload) {
	if r.source != nil {
		r.source.AddLogData(envelope)
	}
}
