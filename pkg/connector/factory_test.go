package connector

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/edgehub-net/edgehub/pkg/util"
)

func fakeConstructor(id string) Connector {
	return NewBase(id)
}

func TestFactoryCreate_Validation(t *testing.T) {
	f := NewFactory(map[string]Constructor{"Temp": fakeConstructor}, nil)

	tests := []struct {
		name     string
		typeName string
		id       string
		wantErr  error
	}{
		{"empty type", "", "d1", util.ErrInvalidType},
		{"empty id", "Temp", "", util.ErrInvalidID},
		{"unknown type", "Pressure", "d1", util.ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Create(tt.typeName, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create(%q, %q) err = %v, want %v", tt.typeName, tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestFactoryCreate(t *testing.T) {
	f := NewFactory(map[string]Constructor{"Temp": fakeConstructor}, nil)

	inst, err := f.Create("Temp", "d1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.ID() != "d1" {
		t.Errorf("ID = %q, want d1", inst.ID())
	}
	if inst.IsActive() {
		t.Error("fresh instance must be INACTIVE")
	}
}

type recordingProvider struct {
	ids []string
}

func (p *recordingProvider) GetLogger(id string) logrus.FieldLogger {
	p.ids = append(p.ids, id)
	return util.NopLogger()
}

func TestFactoryCreate_AttachesProviderLogger(t *testing.T) {
	provider := &recordingProvider{}
	f := NewFactory(map[string]Constructor{"Temp": fakeConstructor}, provider)

	if _, err := f.Create("Temp", "d7"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(provider.ids) != 1 || provider.ids[0] != "d7" {
		t.Errorf("provider asked for %v, want [d7]", provider.ids)
	}
}

func TestFactoryCopiesTypeMap(t *testing.T) {
	types := map[string]Constructor{"Temp": fakeConstructor}
	f := NewFactory(types, nil)

	// Mutating the caller's map must not affect the registry.
	delete(types, "Temp")
	types["Rogue"] = fakeConstructor

	if !f.Has("Temp") {
		t.Error("registry lost a type after caller-side mutation")
	}
	if f.Has("Rogue") {
		t.Error("registry gained a type from caller-side mutation")
	}
}

func TestFactoryRebind(t *testing.T) {
	f := NewFactory(map[string]Constructor{"Temp": fakeConstructor}, nil)
	f.Rebind(map[string]Constructor{"Pressure": fakeConstructor})

	if f.Has("Temp") {
		t.Error("rebind must replace the whole table")
	}
	if !f.Has("Pressure") {
		t.Error("rebound type missing")
	}
}
