// Package app implements the application layer for nest.
package app

import (
	"context"

	"go.trai.ch/nest/internal/adapters/telemetry"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/engine/actual"
	"go.trai.ch/nest/internal/engine/ideal"
	"go.trai.ch/nest/internal/engine/reify"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	lockfiles    ports.LockfileStore
	ideal        *ideal.Builder
	actual       *actual.Builder
	reifier      *reify.Reifier
	observer     ports.StepObserver
	logger       ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	lockfiles ports.LockfileStore,
	idealBuilder *ideal.Builder,
	actualBuilder *actual.Builder,
	reifier *reify.Reifier,
	observer ports.StepObserver,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		lockfiles:    lockfiles,
		ideal:        idealBuilder,
		actual:       actualBuilder,
		reifier:      reifier,
		observer:     observer,
		logger:       log,
	}
}

// InstallOptions configures Install and Plan.
type InstallOptions struct {
	// Root is the project directory. Empty means the working directory.
	Root string
	// Add lists specifiers to add to the root manifest, e.g. "foo@^1".
	Add []string
	// Remove lists dependency names to drop from the root manifest.
	Remove []string
	// DryRun computes the changes without touching the filesystem.
	DryRun bool
	// Frozen fails with domain.ErrLockfileOutdated instead of updating the lockfile.
	Frozen        bool
	IgnoreScripts bool
	// Verbose logs a line per finished engine step.
	Verbose bool
}

// Result describes the outcome of an install.
type Result struct {
	// Graph is the ideal graph.
	Graph *domain.Graph
	// Diff holds the changes between the installed tree and Graph.
	Diff *domain.Diff
	// Report lists the dependencies that could not be resolved.
	Report *domain.ResolutionReport
	// OptionalFailures holds the lifecycle script failures of optional packages.
	OptionalFailures []error
	// Applied reports whether the changes were written to disk.
	Applied bool
}

// Install resolves the project, applies the changes to node_modules and
// writes the lockfile.
//
//nolint:cyclop // orchestration function
func (a *App) Install(ctx context.Context, opts InstallOptions) (*Result, error) {
	if opts.Root == "" {
		opts.Root = "."
	}

	// 1. Load the configuration
	cfg, err := a.configLoader.Load(opts.Root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	if opts.Verbose {
		shutdown := telemetry.Setup(telemetry.NewBridge(a.logger))
		defer func() {
			_ = shutdown(context.WithoutCancel(ctx))
		}()
	}

	// 2. Read the previous lockfile
	locked, err := a.lockfiles.Load(cfg.Root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load lockfile")
	}

	// 3. Resolve the ideal graph
	idealGraph, report, err := a.ideal.Build(ctx, ideal.Options{
		ProjectRoot: cfg.Root,
		Add:         opts.Add,
		Remove:      opts.Remove,
		Workspaces:  cfg.Workspaces,
		Overrides:   cfg.Overrides,
		Registry:    cfg.Registry,
		Registries:  cfg.Registries,
		Jobs:        cfg.Jobs,
		Observer:    a.observer,
		Lockfile:    locked,
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve dependencies")
	}

	if opts.Frozen {
		if err := checkFrozen(locked, idealGraph); err != nil {
			return nil, err
		}
	}

	// 4. Load what is installed and compare
	actualGraph, err := a.actual.Build(ctx, actual.Options{
		ProjectRoot: cfg.Root,
		Workspaces:  cfg.Workspaces,
		Registries:  cfg.Registries,
		Observer:    a.observer,
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load installed packages")
	}

	res := &Result{
		Graph:  idealGraph,
		Diff:   domain.ComputeDiff(actualGraph, idealGraph),
		Report: report,
	}
	if opts.DryRun {
		return res, nil
	}

	// 5. Apply
	if res.Diff.HasChanges() {
		out, err := a.reifier.Reify(ctx, reify.Options{
			Actual:        actualGraph,
			Ideal:         idealGraph,
			Diff:          res.Diff,
			IgnoreScripts: opts.IgnoreScripts || !cfg.ScriptsEnable,
			Jobs:          cfg.Jobs,
			Observer:      a.observer,
		})
		if err != nil {
			return nil, zerr.Wrap(err, "failed to install packages")
		}
		res.OptionalFailures = out.OptionalFailures
		res.Applied = true
	}

	// 6. Persist the lockfile
	if !opts.Frozen {
		if err := a.lockfiles.Save(cfg.Root, idealGraph); err != nil {
			return nil, zerr.Wrap(err, "failed to write lockfile")
		}
	}

	return res, nil
}

// Plan computes the changes Install would make without applying them.
func (a *App) Plan(ctx context.Context, opts InstallOptions) (*Result, error) {
	opts.DryRun = true
	return a.Install(ctx, opts)
}

// checkFrozen fails when the ideal graph is not exactly the locked one.
func checkFrozen(locked, idealGraph *domain.Graph) error {
	if locked == nil {
		return zerr.Wrap(domain.ErrLockfileOutdated, "no lockfile to install from")
	}
	d := domain.ComputeDiff(locked, idealGraph)
	if !d.HasChanges() {
		return nil
	}
	return zerr.With(
		zerr.With(zerr.Wrap(domain.ErrLockfileOutdated, "dependencies changed since the lockfile was written"),
			"added", len(d.Nodes.Add)),
		"removed", len(d.Nodes.Delete),
	)
}
