package shell

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/config"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the script runner Graft node.
const NodeID graft.ID = "adapter.shell"

func init() {
	graft.Register(graft.Node[ports.ScriptRunner]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.ScriptRunner, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return NewRunner(log, cfg.ScriptShell), nil
		},
	})
}
