package connector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgehub-net/edgehub/pkg/util"
)

func TestPollFrequency(t *testing.T) {
	tests := []struct {
		name    string
		config  Payload
		want    time.Duration
		wantErr bool
	}{
		{"missing", Payload{}, 0, true},
		{"zero", Payload{"pollFrequency": float64(0)}, 0, true},
		{"negative", Payload{"pollFrequency": float64(-5)}, 0, true},
		{"not a number", Payload{"pollFrequency": "fast"}, 0, true},
		{"json number", Payload{"pollFrequency": float64(250)}, 250 * time.Millisecond, false},
		{"int", Payload{"pollFrequency": 100}, 100 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PollFrequency(tt.config)
			if tt.wantErr {
				if !errors.Is(err, util.ErrInvalidConfig) {
					t.Errorf("err = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PollFrequency: %v", err)
			}
			if got != tt.want {
				t.Errorf("PollFrequency = %v, want %v", got, tt.want)
			}
		})
	}
}

func newCountingPoller(id string) (*Polling, *int64) {
	var ticks int64
	p := NewPolling(id, func(ctx context.Context) {
		atomic.AddInt64(&ticks, 1)
	})
	p.BindHooks(
		func(ctx context.Context, config Payload) (interface{}, error) { return nil, nil },
		func(ctx context.Context) (interface{}, error) { return nil, nil },
	)
	return p, &ticks
}

func TestPollingInit_RejectsBadFrequency(t *testing.T) {
	p, ticks := newCountingPoller("poll-1")

	_, err := p.Init(context.Background(), Payload{}, "r1")
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if p.IsActive() {
		t.Error("connector must stay INACTIVE")
	}

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(ticks) != 0 {
		t.Error("process hook must not run after rejected init")
	}
}

func TestPollingRunsProcess(t *testing.T) {
	p, ticks := newCountingPoller("poll-1")

	if _, err := p.Init(context.Background(), Payload{"pollFrequency": float64(10)}, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Stop(context.Background(), "r2")

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(ticks) < 3 {
		select {
		case <-deadline:
			t.Fatalf("process ran %d times, want >= 3", atomic.LoadInt64(ticks))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPollingStopCancelsTimer(t *testing.T) {
	p, ticks := newCountingPoller("poll-1")

	if _, err := p.Init(context.Background(), Payload{"pollFrequency": float64(10)}, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := p.Stop(context.Background(), "r2"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	before := atomic.LoadInt64(ticks)
	time.Sleep(50 * time.Millisecond)
	if after := atomic.LoadInt64(ticks); after != before {
		t.Errorf("process ran after stop: %d -> %d", before, after)
	}
}

func TestPollingReinitReschedules(t *testing.T) {
	p, ticks := newCountingPoller("poll-1")

	if _, err := p.Init(context.Background(), Payload{"pollFrequency": float64(10)}, "r1"); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	// Reschedule with a much slower cadence; the old ticker must be
	// cancelled rather than stacking with the new one.
	if _, err := p.Init(context.Background(), Payload{"pollFrequency": float64(10000)}, "r2"); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	defer p.Stop(context.Background(), "r3")

	base := atomic.LoadInt64(ticks)
	time.Sleep(60 * time.Millisecond)
	if after := atomic.LoadInt64(ticks); after != base {
		t.Errorf("old timer still firing after reschedule: %d -> %d", base, after)
	}
}
