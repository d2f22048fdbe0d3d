package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgehub-net/edgehub/internal/testutil"
	"github.com/edgehub-net/edgehub/pkg/util"
)

const basicConfig = `{
    "connectorTypes": {"A": "./a"},
    "cloudConnectors": {"c1": {"type": "A", "config": {}}},
    "deviceConnectors": {"d1": {"type": "A", "config": {}}}
}`

// writeConfig drops a config document into a temp dir and returns its
// path.
func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connectors.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// newTestController builds a controller whose every connector type
// resolves to tracked fakes.
func newTestController(t *testing.T) (*Controller, *testutil.Registry) {
	t.Helper()
	reg := testutil.NewRegistry()
	ctrl := New(Config{Resolve: reg.Resolve}, nil)
	return ctrl, reg
}

func TestInitHappyPath(t *testing.T) {
	ctrl, reg := newTestController(t)
	path := writeConfig(t, basicConfig)

	if err := ctrl.Init(context.Background(), path, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !ctrl.IsActive() {
		t.Error("controller should be ACTIVE")
	}

	cloud := ctrl.CloudConnectors()
	if _, ok := cloud["c1"]; !ok {
		t.Errorf("CloudConnectors = %v, want c1 present", cloud)
	}
	device := ctrl.DeviceConnectors()
	if _, ok := device["d1"]; !ok {
		t.Errorf("DeviceConnectors = %v, want d1 present", device)
	}
	if snap := cloud["c1"]; snap.Type != "A" {
		t.Errorf("snapshot type = %q, want A", snap.Type)
	}

	if reg.Latest("c1") == nil || !reg.Latest("c1").IsActive() {
		t.Error("c1 instance should be ACTIVE")
	}
	if got := reg.Latest("d1").InitCalls(); got != 1 {
		t.Errorf("d1 init calls = %d, want 1", got)
	}
}

func TestInitMissingSection(t *testing.T) {
	ctrl, reg := newTestController(t)
	path := writeConfig(t, `{"cloudConnectors": {}, "deviceConnectors": {}}`)

	err := ctrl.Init(context.Background(), path, "r1")
	if !errors.Is(err, util.ErrConfigShape) {
		t.Fatalf("err = %v, want ErrConfigShape", err)
	}
	var shapeErr *util.ShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Section != "connectorTypes" {
		t.Errorf("err = %v, want the missing section named", err)
	}
	if ctrl.IsActive() {
		t.Error("controller must stay INACTIVE")
	}
	if len(reg.All("c1")) != 0 {
		t.Error("no connector may be constructed from a malformed document")
	}
}

func TestInitMissingFile(t *testing.T) {
	ctrl, _ := newTestController(t)

	err := ctrl.Init(context.Background(), filepath.Join(t.TempDir(), "absent.json"), "r1")
	if !errors.Is(err, util.ErrConfigRead) {
		t.Fatalf("err = %v, want ErrConfigRead", err)
	}
}

func TestInitStartupFailure(t *testing.T) {
	reg := testutil.NewRegistry()
	reg.Configure = func(f *testutil.FakeConnector) {
		if f.ID() == "d1" {
			f.FailInit = errors.New("sensor absent")
		}
	}
	ctrl := New(Config{Resolve: reg.Resolve}, nil)
	path := writeConfig(t, basicConfig)

	err := ctrl.Init(context.Background(), path, "r1")
	if !errors.Is(err, util.ErrStartupFailed) {
		t.Fatalf("err = %v, want ErrStartupFailed", err)
	}
	if ctrl.IsActive() {
		t.Error("controller must stay INACTIVE when a connector fails to start")
	}
	// The healthy connector still started.
	if reg.Latest("c1") == nil || !reg.Latest("c1").IsActive() {
		t.Error("c1 should be ACTIVE despite d1's failure")
	}
}

func TestStopAndShutdownGate(t *testing.T) {
	ctrl, reg := newTestController(t)
	path := writeConfig(t, basicConfig)

	if err := ctrl.Init(context.Background(), path, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ctrl.Stop(context.Background(), "r2"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctrl.IsActive() {
		t.Error("controller should be INACTIVE after stop")
	}
	if got := reg.Latest("c1").StopCalls(); got != 1 {
		t.Errorf("c1 stop calls = %d, want 1", got)
	}
	if len(ctrl.CloudConnectors()) != 0 {
		t.Error("no instantiated slots may remain after stop")
	}

	// The shutdown gate refuses new instances until the next Init.
	r := ctrl.getOrCreateRecord(CategoryCloud, "c1")
	res := <-ctrl.enqueueInit(r, "r3")
	if !errors.Is(res.err, util.ErrShuttingDown) {
		t.Fatalf("init after stop: err = %v, want ErrShuttingDown", res.err)
	}
	if len(reg.All("c1")) != 1 {
		t.Error("no new instance may be constructed while shutting down")
	}
}

func TestInitAfterStop(t *testing.T) {
	ctrl, reg := newTestController(t)
	path := writeConfig(t, basicConfig)

	if err := ctrl.Init(context.Background(), path, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ctrl.Stop(context.Background(), "r2"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := ctrl.Init(context.Background(), path, "r3"); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if !ctrl.IsActive() {
		t.Error("controller should be ACTIVE again")
	}
	if got := len(reg.All("c1")); got != 2 {
		t.Errorf("c1 instances = %d, want a fresh one per init", got)
	}
}

func TestInitOnActiveSlotFails(t *testing.T) {
	ctrl, _ := newTestController(t)
	path := writeConfig(t, basicConfig)

	if err := ctrl.Init(context.Background(), path, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	r := ctrl.lookupRecord(CategoryCloud, "c1")
	res := <-ctrl.enqueueInit(r, "r2")
	if !errors.Is(res.err, util.ErrAlreadyActive) {
		t.Fatalf("err = %v, want ErrAlreadyActive", res.err)
	}
}

func TestResolveModulePath(t *testing.T) {
	ctrl := New(Config{ModuleBasePath: "/opt/edgehub/modules"}, nil)

	tests := []struct {
		in   string
		want string
	}{
		{"./temp", "/opt/edgehub/modules/temp"},
		{"./nested/probe", "/opt/edgehub/modules/nested/probe"},
		{"cnccloud", "cnccloud"},
		{"github.com/acme/widget", "github.com/acme/widget"},
	}
	for _, tt := range tests {
		if got := ctrl.resolveModulePath(tt.in); got != tt.want {
			t.Errorf("resolveModulePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConnectorReport(t *testing.T) {
	ctrl, _ := newTestController(t)
	path := writeConfig(t, basicConfig)

	if err := ctrl.Init(context.Background(), path, "r1"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	report := ctrl.ConnectorReport()
	if len(report) != 2 {
		t.Fatalf("report rows = %d, want 2", len(report))
	}
	for _, row := range report {
		if row["state"] != "READY" {
			t.Errorf("row %v, want READY", row)
		}
	}
}
