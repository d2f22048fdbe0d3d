// Package httpconn implements the Http connector: a cloud connector
// that delivers queued telemetry and log envelopes to an upstream
// endpoint as JSON batches over HTTP POST.
package httpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/util"
)

const (
	defaultFlushInterval = time.Second
	requestTimeout       = 30 * time.Second
)

// Connector posts outbound payload batches to a configured URL.
type Connector struct {
	*connector.Base

	mu      sync.Mutex
	url     string
	headers map[string]string
	client  *http.Client
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	flush   time.Duration
}

// New constructs an inactive Http connector.
func New(id string) connector.Connector {
	c := &Connector{Base: connector.NewBase(id)}
	c.BindHooks(c.start, c.shutdown)
	return c
}

// AddLogData queues a log envelope for upstream delivery.
func (c *Connector) AddLogData(payload connector.Payload) {
	if payload == nil {
		return
	}
	_ = c.AddData(payload, "")
}

func (c *Connector) start(ctx context.Context, config connector.Payload) (interface{}, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", util.ErrInvalidConfig)
	}

	headers := map[string]string{}
	if raw, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	flush := defaultFlushInterval
	if v, ok := config["flushInterval"].(float64); ok && v > 0 {
		flush = time.Duration(v) * time.Millisecond
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.url = url
	c.headers = headers
	c.flush = flush
	c.client = &http.Client{Timeout: requestTimeout}
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.flushLoop(runCtx)

	c.Logger().Infof("posting telemetry to %s", url)
	return connector.Payload{"url": url}, nil
}

func (c *Connector) shutdown(ctx context.Context) (interface{}, error) {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	// Final best-effort delivery of anything still queued.
	c.post(context.Background())
	return nil, nil
}

func (c *Connector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flush)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.post(ctx)
		}
	}
}

// post drains the outbound buffer and delivers it as one JSON batch.
// Delivery is best effort: a failed batch is logged and dropped.
func (c *Connector) post(ctx context.Context) {
	queued := c.TakeQueued()
	if len(queued) == 0 {
		return
	}

	body, err := json.Marshal(queued)
	if err != nil {
		c.Logger().Warnf("dropping unmarshalable batch: %v", err)
		return
	}

	c.mu.Lock()
	url := c.url
	headers := c.headers
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.Logger().Warnf("building upstream request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		c.Logger().Warnf("upstream post failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Logger().Warnf("upstream rejected batch: %s", resp.Status)
		return
	}
	c.Logger().Debugf("delivered %d payloads", len(queued))
}
