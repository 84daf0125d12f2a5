// Package reify applies a diff to the project's node_modules.
package reify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// Step names reported to the observer.
const (
	StepExtract = "extract packages"
	StepLink    = "link dependencies"
	StepBins    = "mark binaries executable"
	StepScripts = "run lifecycle scripts"
	StepUnlink  = "unlink removed dependencies"
	StepDelete  = "delete removed packages"
)

// Options configures a Reify.
type Options struct {
	Actual *domain.Graph
	Ideal  *domain.Graph
	Diff   *domain.Diff
	// IgnoreScripts skips lifecycle scripts.
	IgnoreScripts bool
	// Jobs bounds concurrent lifecycle scripts. Zero means runtime.NumCPU().
	Jobs     int
	Observer ports.StepObserver
}

// Result is the outcome of a successful Reify.
type Result struct {
	// Graph is the new actual graph.
	Graph *domain.Graph
	// OptionalFailures holds the script failures of optional packages.
	OptionalFailures []error
}

// Reifier makes the filesystem match an ideal graph.
type Reifier struct {
	source   ports.PackageSource
	git      ports.GitClient
	unpacker ports.Unpacker
	scripts  ports.ScriptRunner
	logger   ports.Logger
}

// NewReifier creates a new Reifier.
func NewReifier(
	source ports.PackageSource,
	git ports.GitClient,
	unpacker ports.Unpacker,
	scripts ports.ScriptRunner,
	logger ports.Logger,
) *Reifier {
	return &Reifier{
		source:   source,
		git:      git,
		unpacker: unpacker,
		scripts:  scripts,
		logger:   logger,
	}
}

type run struct {
	r        *Reifier
	opts     Options
	root     string
	observer ports.StepObserver
	journal  *journal

	// linked holds the link paths written in this run, so the unlink step
	// leaves replaced entries alone.
	linked   map[string]bool
	failures []error
}

// Reify applies opts.Diff. On failure every change is rolled back and the
// original error is returned; if the rollback itself failed the error carries
// rollback_incomplete=true and matches domain.ErrRollback.
func (r *Reifier) Reify(ctx context.Context, opts Options) (*Result, error) {
	root := opts.Ideal.ProjectRoot
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	observer := opts.Observer
	if observer == nil {
		observer = ports.NoopObserver{}
	}

	backupDir := domain.DefaultBackupPath(root)
	if _, err := os.Lstat(backupDir); err == nil {
		r.logger.Warn("removing leftover backups from an interrupted install")
		if err := os.RemoveAll(backupDir); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to remove leftover backups"), "path", backupDir)
		}
	}

	state := &run{
		r:        r,
		opts:     opts,
		root:     root,
		observer: observer,
		journal:  newJournal(backupDir),
		linked:   make(map[string]bool),
	}

	if err := state.steps(ctx); err != nil {
		return nil, state.rollback(err)
	}

	if err := state.journal.commit(); err != nil {
		r.logger.Warn(err.Error())
	}

	g, err := opts.Diff.Apply(opts.Actual)
	if err != nil {
		return nil, err
	}
	return &Result{Graph: g, OptionalFailures: state.failures}, nil
}

func (s *run) steps(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepExtract, s.extract},
		{StepLink, s.link},
		{StepBins, s.chmodBins},
		{StepScripts, s.runScripts},
		{StepUnlink, s.unlink},
		{StepDelete, s.deleteNodes},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "reify cancelled")
		}
		s.observer.OnStep(step.name, ports.PhaseStart)
		if err := step.fn(ctx); err != nil {
			s.observer.OnStep(step.name, ports.PhaseError)
			return err
		}
		s.observer.OnStep(step.name, ports.PhaseEnd)
	}
	return nil
}

func (s *run) rollback(cause error) error {
	rbErr := s.journal.rollback()
	if rbErr == nil {
		return cause
	}
	s.r.logger.Error(rbErr)
	joined := errors.Join(cause, zerr.Wrap(domain.ErrRollback, rbErr.Error()))
	return zerr.With(zerr.Wrap(joined, "reify failed"), "rollback_incomplete", true)
}

func (s *run) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}
