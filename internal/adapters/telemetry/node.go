package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the step observer Graft node.
const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.StepObserver]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.StepObserver, error) {
			return NewObserver(context.WithoutCancel(ctx)), nil
		},
	})
}
