// Package cnccloud implements the CncCloud connector: a Redis-backed
// command-and-control cloud channel. Commands arrive as JSON batches
// on a subscribed channel and are surfaced as data events; outbound
// telemetry and log envelopes are flushed to an upstream list.
package cnccloud

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/edgehub-net/edgehub/pkg/connector"
	"github.com/edgehub-net/edgehub/pkg/util"
)

const (
	defaultFlushInterval = time.Second
	dialTimeout          = 10 * time.Second
)

// Connector bridges the gateway to a Redis command-and-control
// endpoint.
type Connector struct {
	*connector.Base

	mu      sync.Mutex
	client  *redis.Client
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cmdChan string
	outKey  string
	flush   time.Duration
}

// New constructs an inactive CncCloud connector.
func New(id string) connector.Connector {
	c := &Connector{Base: connector.NewBase(id)}
	c.BindHooks(c.start, c.shutdown)
	return c
}

// AddLogData queues a log envelope for upstream delivery alongside
// regular telemetry.
func (c *Connector) AddLogData(payload connector.Payload) {
	if payload == nil {
		return
	}
	// Outbound queue accepts any mapping; errors are impossible here.
	_ = c.AddData(payload, "")
}

func (c *Connector) start(ctx context.Context, config connector.Payload) (interface{}, error) {
	addr, _ := config["addr"].(string)
	if addr == "" {
		return nil, fmt.Errorf("%w: addr is required", util.ErrInvalidConfig)
	}
	password, _ := config["password"].(string)
	db := 0
	if v, ok := config["db"].(float64); ok {
		db = int(v)
	}
	c.cmdChan, _ = config["commandChannel"].(string)
	if c.cmdChan == "" {
		c.cmdChan = fmt.Sprintf("edgehub:%s:commands", c.ID())
	}
	c.outKey, _ = config["outboundKey"].(string)
	if c.outKey == "" {
		c.outKey = fmt.Sprintf("edgehub:%s:outbound", c.ID())
	}
	c.flush = defaultFlushInterval
	if v, ok := config["flushInterval"].(float64); ok && v > 0 {
		c.flush = time.Duration(v) * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: dialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.client = client
	c.pubsub = client.Subscribe(runCtx, c.cmdChan)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.receiveLoop(runCtx)
	go c.flushLoop(runCtx)

	c.Logger().Infof("subscribed to %s on %s", c.cmdChan, addr)
	return connector.Payload{"addr": addr, "commandChannel": c.cmdChan}, nil
}

func (c *Connector) shutdown(ctx context.Context) (interface{}, error) {
	c.mu.Lock()
	cancel := c.cancel
	pubsub := c.pubsub
	client := c.client
	c.cancel = nil
	c.pubsub = nil
	c.client = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pubsub != nil {
		pubsub.Close()
	}
	c.wg.Wait()

	if client != nil {
		// Push whatever is still queued before the connection drops.
		c.flushQueued(context.Background(), client)
		if err := client.Close(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// receiveLoop turns incoming channel messages into data events. Each
// message is expected to be a JSON sequence of command mappings.
func (c *Connector) receiveLoop(ctx context.Context) {
	defer c.wg.Done()

	c.mu.Lock()
	pubsub := c.pubsub
	c.mu.Unlock()
	if pubsub == nil {
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var batch []interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &batch); err != nil {
				c.Logger().Warnf("discarding malformed command payload: %v", err)
				continue
			}
			c.EmitData(batch)
		}
	}
}

// flushLoop drains the outbound buffer to the upstream list on a
// fixed cadence.
func (c *Connector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flush)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			client := c.client
			c.mu.Unlock()
			if client != nil {
				c.flushQueued(ctx, client)
			}
		}
	}
}

func (c *Connector) flushQueued(ctx context.Context, client *redis.Client) {
	queued := c.TakeQueued()
	if len(queued) == 0 {
		return
	}
	values := make([]interface{}, 0, len(queued))
	for _, payload := range queued {
		data, err := json.Marshal(payload)
		if err != nil {
			c.Logger().Warnf("dropping unmarshalable payload: %v", err)
			continue
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return
	}
	if err := client.RPush(ctx, c.outKey, values...).Err(); err != nil {
		c.Logger().Warnf("outbound flush to %s failed: %v", c.outKey, err)
	}
}
