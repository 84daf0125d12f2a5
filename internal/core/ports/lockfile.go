package ports

import "go.trai.ch/nest/internal/core/domain"

// LockfileStore persists graphs as lockfiles.
//
//go:generate mockgen -source=lockfile.go -destination=mocks/mock_lockfile.go -package=mocks
type LockfileStore interface {
	// Load reads the lockfile of root. It returns nil, nil when there is none.
	Load(root string) (*domain.Graph, error)

	// Save writes g as the lockfile of root.
	Save(root string, g *domain.Graph) error
}
