package semver

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the version picker Graft node.
const NodeID graft.ID = "adapter.semver"

func init() {
	graft.Register(graft.Node[ports.VersionPicker]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.VersionPicker, error) {
			return NewPicker(), nil
		},
	})
}
