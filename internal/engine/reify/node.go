package reify

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/git"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/logger"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/registry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/shell"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/tarball"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the reifier Graft node.
const NodeID graft.ID = "engine.reify"

func init() {
	graft.Register(graft.Node[*Reifier]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			registry.NodeID,
			git.NodeID,
			tarball.NodeID,
			shell.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Reifier, error) {
			source, err := graft.Dep[ports.PackageSource](ctx)
			if err != nil {
				return nil, err
			}

			gitClient, err := graft.Dep[ports.GitClient](ctx)
			if err != nil {
				return nil, err
			}

			unpacker, err := graft.Dep[ports.Unpacker](ctx)
			if err != nil {
				return nil, err
			}

			scripts, err := graft.Dep[ports.ScriptRunner](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewReifier(source, gitClient, unpacker, scripts, log), nil
		},
	})
}
