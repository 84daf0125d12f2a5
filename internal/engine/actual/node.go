package actual

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/fs"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the actual builder Graft node.
const NodeID graft.ID = "engine.actual"

func init() {
	graft.Register(graft.Node[*Builder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.ReaderNodeID, fs.WalkerNodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Builder, error) {
			reader, err := graft.Dep[ports.ManifestReader](ctx)
			if err != nil {
				return nil, err
			}

			walker, err := graft.Dep[ports.ModulesWalker](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewBuilder(reader, walker, log), nil
		},
	})
}
