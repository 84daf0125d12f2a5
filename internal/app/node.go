package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/nest/internal/adapters/lockfile"  //nolint:depguard // Wired in app layer
	"go.trai.ch/nest/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/nest/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/engine/actual"
	"go.trai.ch/nest/internal/engine/ideal"
	"go.trai.ch/nest/internal/engine/reify"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			lockfile.NodeID,
			ideal.NodeID,
			actual.NodeID,
			reify.NodeID,
			telemetry.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewComponents(app, log), nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	lockfiles, err := graft.Dep[ports.LockfileStore](ctx)
	if err != nil {
		return nil, err
	}

	idealBuilder, err := graft.Dep[*ideal.Builder](ctx)
	if err != nil {
		return nil, err
	}

	actualBuilder, err := graft.Dep[*actual.Builder](ctx)
	if err != nil {
		return nil, err
	}

	reifier, err := graft.Dep[*reify.Reifier](ctx)
	if err != nil {
		return nil, err
	}

	observer, err := graft.Dep[ports.StepObserver](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, lockfiles, idealBuilder, actualBuilder, reifier, observer, log), nil
}
