package tarball

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the extraction pool Graft node.
const NodeID graft.ID = "adapter.tarball"

func init() {
	graft.Register(graft.Node[ports.Unpacker]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.Unpacker, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewPool(log, DefaultJobs()), nil
		},
	})
}
