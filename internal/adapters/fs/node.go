package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/core/ports"
)

const (
	// WalkerNodeID is the unique identifier for the modules walker Graft node.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// ReaderNodeID is the unique identifier for the manifest reader Graft node.
	ReaderNodeID graft.ID = "adapter.fs.reader"
)

func init() {
	graft.Register(graft.Node[ports.ModulesWalker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ModulesWalker, error) {
			return NewWalker(), nil
		},
	})

	graft.Register(graft.Node[ports.ManifestReader]{
		ID:        ReaderNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ManifestReader, error) {
			return NewManifestReader(), nil
		},
	})
}
