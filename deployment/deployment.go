package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/cmdutils"
	"github.com/ruteri/tee-module-provisioner/interfaces"
	"github.com/ruteri/tee-module-provisioner/metrics"
	"github.com/ruteri/tee-module-provisioner/modules"
	"github.com/ruteri/tee-module-provisioner/nodes"
)

// Stage identifies a point in the per-module provisioning pipeline. Run
// drives modules through the pipeline up to and including the given stage.
type Stage int

const (
	StageBuild Stage = iota
	StageDeploy
	StageKey
	StageAttest
)

// String returns the stage name used in logs and CLI flags.
func (s Stage) String() string {
	switch s {
	case StageBuild:
		return "build"
	case StageDeploy:
		return "deploy"
	case StageKey:
		return "key"
	case StageAttest:
		return "attest"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Config carries the runtime dependencies of a deployment. Zero values
// select working defaults so tests and the CLI can fill in only what they
// override.
type Config struct {
	// BuildDir receives per-module build outputs. Empty means a fresh
	// temp directory.
	BuildDir string

	// Debug passes the toolchains' debug flags through.
	Debug bool

	// Runner executes external tools. Nil means local subprocesses.
	Runner cmdutils.Runner

	// AttmanCLI overrides the attestation manager client binary.
	AttmanCLI string

	// Resolver resolves dnssrv:// node hosts. Nil means the local stub
	// resolver.
	Resolver *nodes.Resolver

	Log *slog.Logger
}

// Deployment is a loaded deployment descriptor: the node catalog and the
// constructed modules, ready to run. It implements
// interfaces.ModuleRegistry for the status API.
type Deployment struct {
	managerConfig *attestation.Config
	catalog       *nodes.Catalog
	modules       map[string]interfaces.Module
	types         map[string]string
	order         []string
	log           *slog.Logger
}

// Load constructs the nodes and modules of a descriptor. Modules restored
// from persisted state come back with their completed stages pre-resolved,
// so a subsequent Run only performs the missing work.
func Load(desc *Descriptor, cfg *Config) (*Deployment, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = cmdutils.NewExecRunner(log)
	}
	buildDir := cfg.BuildDir
	if buildDir == "" {
		dir, err := os.MkdirTemp("", "provisioner-build-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create build directory: %w", err)
		}
		buildDir = dir
	}

	var manager *attestation.Manager
	var managerConfig *attestation.Config
	if desc.AttestationManager != nil {
		mgrCfg := *desc.AttestationManager
		managerConfig = &mgrCfg

		var err error
		manager, err = attestation.NewManager(mgrCfg, cfg.AttmanCLI, runner, log)
		if err != nil {
			return nil, fmt.Errorf("failed to set up attestation manager: %w", err)
		}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = nodes.NewResolver("")
	}
	catalog, err := nodes.NewCatalog(desc.Nodes, resolver, log)
	if err != nil {
		return nil, err
	}

	env := &modules.Env{
		BuildDir: buildDir,
		Debug:    cfg.Debug,
		Runner:   runner,
		Manager:  manager,
		Log:      log,
	}

	d := &Deployment{
		managerConfig: managerConfig,
		catalog:       catalog,
		modules:       make(map[string]interfaces.Module, len(desc.Modules)),
		types:         make(map[string]string, len(desc.Modules)),
		log:           log,
	}

	for _, state := range desc.Modules {
		if _, ok := d.modules[state.Name]; ok {
			return nil, fmt.Errorf("duplicate module %s", state.Name)
		}

		node, err := catalog.Node(state.Node)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", state.Name, err)
		}

		var module interfaces.Module
		switch state.Type {
		case modules.ModuleTypeSancus:
			sancusNode, ok := node.(interfaces.SancusNode)
			if !ok {
				return nil, fmt.Errorf("module %s needs a sancus node but %s is not one", state.Name, state.Node)
			}
			module, err = modules.NewSancusModule(state, sancusNode, env)
		case modules.ModuleTypeTrustZone:
			tzNode, ok := node.(interfaces.TrustZoneNode)
			if !ok {
				return nil, fmt.Errorf("module %s needs a trustzone node but %s is not one", state.Name, state.Node)
			}
			module, err = modules.NewTrustZoneModule(state, tzNode, env)
		default:
			return nil, fmt.Errorf("module %s has unknown type %s", state.Name, state.Type)
		}
		if err != nil {
			return nil, err
		}

		d.modules[state.Name] = module
		d.types[state.Name] = state.Type
		d.order = append(d.order, state.Name)
	}

	log.Info("Deployment loaded",
		slog.Int("nodes", len(desc.Nodes)),
		slog.Int("modules", len(desc.Modules)))
	return d, nil
}

// Modules lists all modules in descriptor order.
func (d *Deployment) Modules() []interfaces.Module {
	out := make([]interfaces.Module, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.modules[name])
	}
	return out
}

// Module looks a module up by name.
func (d *Deployment) Module(name string) (interfaces.Module, error) {
	module, ok := d.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrModuleNotFound, name)
	}
	return module, nil
}

// Nodes lists the deployment's nodes in descriptor order.
func (d *Deployment) Nodes() []interfaces.Node {
	return d.catalog.Nodes()
}

// Run drives every module through the pipeline up to and including the
// given stage. Modules with a priority run first, one priority group at a
// time in ascending order; modules without a priority run last. Within a
// group modules provision concurrently. A group with failures stops the
// run, since priorities express ordering dependencies between modules;
// the returned error joins every failure of the stopped group.
func (d *Deployment) Run(ctx context.Context, through Stage) error {
	for _, group := range d.priorityGroups() {
		errs := make([]error, len(group))
		var wg sync.WaitGroup
		for i, name := range group {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = d.provision(ctx, name, through)
			}()
		}
		wg.Wait()

		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	return nil
}

// priorityGroups partitions the modules into run order: one group per
// priority value ascending, then a final group for modules without one.
func (d *Deployment) priorityGroups() [][]string {
	byPriority := make(map[int][]string)
	var priorities []int
	var rest []string

	for _, name := range d.order {
		priority, ok := d.modules[name].Priority()
		if !ok {
			rest = append(rest, name)
			continue
		}
		if _, seen := byPriority[priority]; !seen {
			priorities = append(priorities, priority)
		}
		byPriority[priority] = append(byPriority[priority], name)
	}
	slices.Sort(priorities)

	groups := make([][]string, 0, len(priorities)+1)
	for _, priority := range priorities {
		groups = append(groups, byPriority[priority])
	}
	if len(rest) > 0 {
		groups = append(groups, rest)
	}
	return groups
}

func (d *Deployment) provision(ctx context.Context, name string, through Stage) error {
	module := d.modules[name]
	moduleType := d.types[name]
	log := d.log.With(slog.String("module", name))

	start := time.Now()
	_, err := module.Build(ctx)
	metrics.RecordBuild(moduleType, time.Since(start), err)
	if err != nil {
		log.Error("Module build failed", "err", err)
		return err
	}
	if through == StageBuild {
		return nil
	}

	_, err = module.Deploy(ctx)
	metrics.RecordDeployment(moduleType, err)
	if err != nil {
		log.Error("Module deployment failed", "err", err)
		return err
	}
	if through == StageDeploy {
		return nil
	}

	if _, err := module.Key(ctx); err != nil {
		log.Error("Module key derivation failed", "err", err)
		return err
	}
	if through == StageKey {
		return nil
	}

	err = module.Attest(ctx)
	metrics.RecordAttestation(moduleType, err)
	if err != nil {
		log.Error("Module attestation failed", "err", err)
		return err
	}
	return nil
}

// Dump assembles the persisted form of the whole deployment. Modules
// record stage results only once deployed, so dumping after a partial
// failure yields a document that resumes cleanly.
func (d *Deployment) Dump() *Descriptor {
	desc := &Descriptor{
		AttestationManager: d.managerConfig,
		Nodes:              d.catalog.Dump(),
	}
	for _, name := range d.order {
		desc.Modules = append(desc.Modules, d.modules[name].Dump())
	}
	return desc
}

// Persist writes the deployment's current state document to the backend.
func (d *Deployment) Persist(ctx context.Context, backend interfaces.StateBackend) error {
	data, err := d.Dump().Marshal()
	if err != nil {
		return err
	}
	if err := backend.StoreState(ctx, data); err != nil {
		return fmt.Errorf("failed to persist deployment state: %w", err)
	}

	d.log.Info("Deployment state persisted", slog.String("backend", backend.Name()))
	return nil
}

// Archive stores the binaries of deployed modules in the backend's
// artifact store and returns their content IDs by module name.
func (d *Deployment) Archive(ctx context.Context, backend interfaces.StateBackend) (map[string]interfaces.ArtifactID, error) {
	ids := make(map[string]interfaces.ArtifactID, len(d.order))
	for _, name := range d.order {
		state := d.modules[name].Dump()
		if !state.Deployed || state.Binary == "" {
			continue
		}

		data, err := os.ReadFile(state.Binary)
		if err != nil {
			return ids, fmt.Errorf("%w: module %s binary %s", interfaces.ErrArtifactMissing, name, state.Binary)
		}
		id, err := backend.StoreArtifact(ctx, data)
		if err != nil {
			return ids, fmt.Errorf("failed to archive module %s binary: %w", name, err)
		}

		d.log.Info("Module binary archived",
			slog.String("module", name),
			slog.String("artifact", id.String()))
		ids[name] = id
	}
	return ids, nil
}
