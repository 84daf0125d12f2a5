package git

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the git client Graft node.
const NodeID graft.ID = "adapter.git"

func init() {
	graft.Register(graft.Node[ports.GitClient]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.GitClient, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewClient(log), nil
		},
	})
}
