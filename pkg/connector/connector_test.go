package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/edgehub-net/edgehub/pkg/util"
)

func TestBaseInit_NoHooks(t *testing.T) {
	b := NewBase("bare")

	_, err := b.Init(context.Background(), Payload{}, "r1")
	if !errors.Is(err, util.ErrNotImplemented) {
		t.Fatalf("Init without hooks: err = %v, want ErrNotImplemented", err)
	}
	if b.IsActive() {
		t.Error("connector must stay INACTIVE after failed init")
	}

	_, err = b.Stop(context.Background(), "r1")
	if !errors.Is(err, util.ErrNotImplemented) {
		t.Fatalf("Stop without hooks: err = %v, want ErrNotImplemented", err)
	}
}

func TestBaseInit_NilConfig(t *testing.T) {
	b := NewBase("c1")
	b.BindHooks(
		func(ctx context.Context, config Payload) (interface{}, error) { return nil, nil },
		func(ctx context.Context) (interface{}, error) { return nil, nil },
	)

	_, err := b.Init(context.Background(), nil, "r1")
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBaseLifecycle(t *testing.T) {
	started := 0
	stopped := 0
	b := NewBase("c1")
	b.BindHooks(
		func(ctx context.Context, config Payload) (interface{}, error) {
			started++
			return Payload{"ok": true}, nil
		},
		func(ctx context.Context) (interface{}, error) {
			stopped++
			return nil, nil
		},
	)

	result, err := b.Init(context.Background(), Payload{}, "r1")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !b.IsActive() {
		t.Error("connector should be ACTIVE after successful init")
	}
	if m, ok := result.(Payload); !ok || m["ok"] != true {
		t.Errorf("init result = %v, want start hook payload", result)
	}

	if _, err := b.Stop(context.Background(), "r2"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if b.IsActive() {
		t.Error("connector should be INACTIVE after stop")
	}
	if started != 1 || stopped != 1 {
		t.Errorf("hook calls = %d/%d, want 1/1", started, stopped)
	}
}

func TestBaseInit_HookFailure(t *testing.T) {
	hookErr := errors.New("transport down")
	b := NewBase("c1")
	b.BindHooks(
		func(ctx context.Context, config Payload) (interface{}, error) { return nil, hookErr },
		func(ctx context.Context) (interface{}, error) { return nil, nil },
	)

	_, err := b.Init(context.Background(), Payload{}, "r1")
	if !errors.Is(err, hookErr) {
		t.Fatalf("err = %v, want hook error surfaced", err)
	}
	if b.IsActive() {
		t.Error("connector must stay INACTIVE after hook failure")
	}
}

func TestBaseStop_HookFailureStillDeactivates(t *testing.T) {
	b := NewBase("c1")
	b.BindHooks(
		func(ctx context.Context, config Payload) (interface{}, error) { return nil, nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("hang") },
	)

	if _, err := b.Init(context.Background(), Payload{}, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := b.Stop(context.Background(), "r2"); err == nil {
		t.Fatal("Stop should surface the hook error")
	}
	if b.IsActive() {
		t.Error("connector must be INACTIVE even when the stop hook fails")
	}
}

func TestAddData(t *testing.T) {
	b := NewBase("c1")

	if err := b.AddData(nil, "r1"); !errors.Is(err, util.ErrInvalidPayload) {
		t.Fatalf("AddData(nil): err = %v, want ErrInvalidPayload", err)
	}

	for i := 0; i < 3; i++ {
		if err := b.AddData(Payload{"n": i}, "r1"); err != nil {
			t.Fatalf("AddData: %v", err)
		}
	}
	if got := b.QueuedCount(); got != 3 {
		t.Errorf("QueuedCount = %d, want 3", got)
	}

	queued := b.TakeQueued()
	if len(queued) != 3 {
		t.Fatalf("TakeQueued returned %d payloads, want 3", len(queued))
	}
	if got := b.QueuedCount(); got != 0 {
		t.Errorf("QueuedCount after drain = %d, want 0", got)
	}
}

func TestHandlers(t *testing.T) {
	b := NewBase("c1")

	var dataGot []interface{}
	var logGot []Payload
	b.OnData(func(p interface{}) { dataGot = append(dataGot, p) })
	b.OnLog(func(p Payload) { logGot = append(logGot, p) })

	b.EmitData(Payload{"v": 1})
	b.EmitLog(Payload{"msg": "hi"})

	if len(dataGot) != 1 || len(logGot) != 1 {
		t.Fatalf("handler calls = %d/%d, want 1/1", len(dataGot), len(logGot))
	}

	b.DetachHandlers()
	b.EmitData(Payload{"v": 2})
	b.EmitLog(Payload{"msg": "bye"})

	if len(dataGot) != 1 || len(logGot) != 1 {
		t.Error("detached handlers must not receive events")
	}
}

func TestAddLogDataDefaultNoop(t *testing.T) {
	b := NewBase("c1")
	b.AddLogData(Payload{"ignored": true})
	if got := b.QueuedCount(); got != 0 {
		t.Errorf("default AddLogData must not queue, got %d", got)
	}
}
