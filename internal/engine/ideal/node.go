package ideal

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/nest/internal/adapters/fs"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/git"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/logger"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/registry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/semver"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/adapters/tarball"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/nest/internal/core/ports"
)

// NodeID is the unique identifier for the ideal builder Graft node.
const NodeID graft.ID = "engine.ideal"

func init() {
	graft.Register(graft.Node[*Builder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			registry.NodeID,
			git.NodeID,
			tarball.NodeID,
			semver.NodeID,
			fs.ReaderNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Builder, error) {
			source, err := graft.Dep[ports.PackageSource](ctx)
			if err != nil {
				return nil, err
			}

			gitClient, err := graft.Dep[ports.GitClient](ctx)
			if err != nil {
				return nil, err
			}

			unpacker, err := graft.Dep[ports.Unpacker](ctx)
			if err != nil {
				return nil, err
			}

			picker, err := graft.Dep[ports.VersionPicker](ctx)
			if err != nil {
				return nil, err
			}

			reader, err := graft.Dep[ports.ManifestReader](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewBuilder(source, gitClient, unpacker, picker, reader, log), nil
		},
	})
}
