package ports

import "go.trai.ch/nest/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads nest.yaml and package.json workspaces from root.
	// A missing nest.yaml yields the defaults.
	Load(root string) (*domain.Config, error)
}
