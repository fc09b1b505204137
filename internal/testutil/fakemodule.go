package testutil

import (
	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/specialistvlad/codebox/internal/registry"
)

// FakeKind is the engine kind registered by FakeModule.
const FakeKind = "fake"

// FakeModule registers Factory under FakeKind.
type FakeModule struct {
	Factory *FakeFactory
}

// Register implements registry.Module.
func (m *FakeModule) Register(r *registry.Registry) {
	r.RegisterEngine(FakeKind, func(engine.Spec) (engine.Factory, error) {
		return m.Factory.Factory(), nil
	})
}
