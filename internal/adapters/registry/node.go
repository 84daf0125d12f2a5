package registry

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/config"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/nest/internal/build"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the registry client Graft node.
const NodeID graft.ID = "adapter.registry"

func init() {
	graft.Register(graft.Node[ports.PackageSource]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.PackageSource, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return NewClient(log,
				WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
				WithDiskCache(filepath.Join(cfg.CacheDir, "packuments"), cfg.CacheTTL),
				WithRetries(cfg.FetchRetries, defaultRetryDelay),
				WithUserAgent("nest/"+build.Version),
			), nil
		},
	})
}
