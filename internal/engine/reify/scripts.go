package reify

import (
	"context"
	"path"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// installEvents run for every package, in order.
var installEvents = []string{"preinstall", "install", "postinstall"}

// PrepareEvent runs after the install events for git packages and importers.
const PrepareEvent = "prepare"

// runScripts runs the lifecycle scripts of the added packages and, when the
// tree changed, of the importers, dependencies first.
func (s *run) runScripts(ctx context.Context) error {
	if s.opts.IgnoreScripts {
		return nil
	}

	var subset []domain.DepID
	for _, n := range s.opts.Diff.Nodes.Add {
		if !n.Importer {
			subset = append(subset, n.ID)
		}
	}
	if s.opts.Diff.HasChanges() {
		for _, n := range s.opts.Ideal.Importers() {
			subset = append(subset, n.ID)
		}
	}
	if len(subset) == 0 {
		return nil
	}

	failures := make(chan error, len(subset))
	sched := scheduler.NewScheduler(s.opts.Ideal, subset)
	err := sched.Run(ctx, s.opts.Jobs, func(ctx context.Context, n *domain.Node) error {
		err := s.runNodeScripts(ctx, n)
		if err != nil && n.Optional && ctx.Err() == nil {
			s.r.logger.Warn("optional package " + n.String() + " failed to install: " + err.Error())
			failures <- err
			return nil
		}
		return err
	})
	close(failures)
	for f := range failures {
		s.failures = append(s.failures, f)
	}
	return err
}

func (s *run) runNodeScripts(ctx context.Context, n *domain.Node) error {
	if n.Manifest == nil {
		return nil
	}
	events := installEvents
	if n.Importer || n.ID.Kind() == domain.KindGit {
		events = append(events[:len(events):len(events)], PrepareEvent)
	}

	binDirs := []string{s.abs(path.Join(n.DependencyDir(), domain.BinDirName))}
	if rootBin := s.abs(path.Join(domain.NodeModulesDirName, domain.BinDirName)); rootBin != binDirs[0] {
		binDirs = append(binDirs, rootBin)
	}

	for _, event := range events {
		if !n.Manifest.HasScript(event) {
			continue
		}
		err := s.r.scripts.Run(ctx, ports.ScriptRequest{
			Event:         event,
			Dir:           s.abs(n.Location),
			Root:          s.root,
			Manifest:      n.Manifest,
			BinDirs:       binDirs,
			IgnoreMissing: true,
		})
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to run "+event), "event", event)
		}
	}
	return nil
}
