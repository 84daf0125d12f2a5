package lockfile

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/fs"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the lockfile store Graft node.
const NodeID graft.ID = "adapter.lockfile"

func init() {
	graft.Register(graft.Node[ports.LockfileStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.ReaderNodeID},
		Run: func(ctx context.Context) (ports.LockfileStore, error) {
			reader, err := graft.Dep[ports.ManifestReader](ctx)
			if err != nil {
				return nil, err
			}
			return NewStore(reader), nil
		},
	})
}
