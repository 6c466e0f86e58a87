package modules

import (
	"log/slog"

	"go.uber.org/atomic"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// Module type discriminators as they appear in deployment descriptors
// and persisted state.
const (
	ModuleTypeSancus    = "sancus"
	ModuleTypeTrustZone = "trustzone"
)

// base holds the lifecycle state shared by all module backends: the
// memoized stage cells and the descriptor fields every module carries.
// Backends embed it and provide the stage computations.
type base struct {
	name     string
	node     interfaces.Node
	priority *int
	nonce    int

	deployed atomic.Bool
	attested atomic.Bool

	env *Env
	log *slog.Logger

	buildCell  *Cell[string]
	deployCell *Cell[interfaces.DeployInfo]
	keyCell    *Cell[interfaces.ModuleKey]
	attestCell *Cell[struct{}]
}

// init populates the shared fields from persisted state. Pointer
// receiver so the atomics are never copied.
func (b *base) init(state *interfaces.ModuleState, node interfaces.Node, env *Env) {
	b.name = state.Name
	b.node = node
	b.priority = state.Priority
	b.nonce = state.Nonce
	b.env = env
	b.log = env.Log.With(slog.String("module", state.Name))

	b.buildCell = NewCell[string]()
	b.deployCell = NewCell[interfaces.DeployInfo]()
	b.keyCell = NewCell[interfaces.ModuleKey]()
	b.attestCell = NewCell[struct{}]()

	b.deployed.Store(state.Deployed)
	b.attested.Store(state.Attested)
}

// Name returns the module name.
func (b *base) Name() string { return b.name }

// Node returns the node the module deploys to.
func (b *base) Node() interfaces.Node { return b.node }

// Priority returns the deployment priority and whether one was set.
func (b *base) Priority() (int, bool) {
	if b.priority == nil {
		return 0, false
	}
	return *b.priority, true
}

// Deployed reports whether the module has been deployed.
func (b *base) Deployed() bool { return b.deployed.Load() }

// Attested reports whether the module has been attested.
func (b *base) Attested() bool { return b.attested.Load() }

// Nonce returns the module's reactive nonce counter.
func (b *base) Nonce() int { return b.nonce }

// dumpCommon fills the state fields shared by all backends.
func (b *base) dumpCommon(moduleType string) *interfaces.ModuleState {
	return &interfaces.ModuleState{
		Type:     moduleType,
		Name:     b.name,
		Node:     b.node.Name(),
		Priority: b.priority,
		Deployed: b.deployed.Load(),
		Attested: b.attested.Load(),
		Nonce:    b.nonce,
	}
}
