package config

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the config loader Graft node.
	NodeID graft.ID = "adapter.config_loader"
	// ConfigNodeID is the unique identifier for the Graft node holding the
	// configuration of the project in the working directory.
	ConfigNodeID graft.ID = "adapter.config"
)

func init() {
	graft.Register(graft.Node[ports.ConfigLoader]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.ConfigLoader, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewLoader(log), nil
		},
	})

	graft.Register(graft.Node[*domain.Config]{
		ID:        ConfigNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (*domain.Config, error) {
			loader, err := graft.Dep[ports.ConfigLoader](ctx)
			if err != nil {
				return nil, err
			}
			return loader.Load(".")
		},
	})
}
