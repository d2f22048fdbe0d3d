package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// ProcessHook is the subtype sampling routine invoked on every poll
// tick. The context is cancelled when polling stops.
type ProcessHook func(ctx context.Context)

// Polling extends Base with a recurring timer that drives a subtype
// sampling routine. Config must carry a positive "pollFrequency" in
// milliseconds. A repeated Init reschedules the timer; Stop cancels
// it.
type Polling struct {
	*Base

	process ProcessHook

	pollMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPolling creates a polling connector base. The process hook runs
// once per poll interval while the connector is active.
func NewPolling(id string, process ProcessHook) *Polling {
	return &Polling{
		Base:    NewBase(id),
		process: process,
	}
}

// PollFrequency extracts the poll interval from config. It fails with
// ErrInvalidConfig when "pollFrequency" is missing or not a positive
// number of milliseconds.
func PollFrequency(config Payload) (time.Duration, error) {
	raw, ok := config["pollFrequency"]
	if !ok {
		return 0, fmt.Errorf("%w: pollFrequency is required", util.ErrInvalidConfig)
	}

	var ms float64
	switch v := raw.(type) {
	case float64:
		ms = v
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	default:
		return 0, fmt.Errorf("%w: pollFrequency must be a number, got %T", util.ErrInvalidConfig, raw)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%w: pollFrequency must be positive, got %v", util.ErrInvalidConfig, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Init validates pollFrequency, runs the base lifecycle, and on
// success (re)schedules the poll timer. Any previously running timer
// is cancelled first.
func (p *Polling) Init(ctx context.Context, config Payload, requestID string) (interface{}, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config must be a mapping", util.ErrInvalidConfig)
	}
	freq, err := PollFrequency(config)
	if err != nil {
		return nil, err
	}

	result, err := p.Base.Init(ctx, config, requestID)
	if err != nil {
		return nil, err
	}

	p.reschedule(freq)
	return result, nil
}

// Stop cancels the poll timer and runs the base lifecycle.
func (p *Polling) Stop(ctx context.Context, requestID string) (interface{}, error) {
	p.cancelPolling()
	return p.Base.Stop(ctx, requestID)
}

func (p *Polling) reschedule(freq time.Duration) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	p.stopTimerLocked()

	pollCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(freq)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				if p.process != nil {
					p.process(pollCtx)
				}
			}
		}
	}()
}

func (p *Polling) cancelPolling() {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	p.stopTimerLocked()
}

// stopTimerLocked cancels the running poll goroutine and waits for it
// to exit. Callers hold pollMu.
func (p *Polling) stopTimerLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.wg.Wait()
	}
}
