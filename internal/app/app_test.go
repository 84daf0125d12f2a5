package app_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/fs"
	"go.trai.ch/nest/internal/adapters/lockfile"
	"go.trai.ch/nest/internal/adapters/semver"
	"go.trai.ch/nest/internal/adapters/tarball"
	"go.trai.ch/nest/internal/app"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/core/ports/mocks"
	"go.trai.ch/nest/internal/engine/actual"
	"go.trai.ch/nest/internal/engine/ideal"
	"go.trai.ch/nest/internal/engine/reify"
	"go.uber.org/mock/gomock"
)

const registry = "https://registry.example/"

type fixture struct {
	root     string
	cfg      *domain.Config
	loader   *mocks.MockConfigLoader
	source   *mocks.MockPackageSource
	logger   *mocks.MockLogger
	app      *app.App
	tarballs map[string][]byte
}

func newFixture(t *testing.T, rootManifest string) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		root:     t.TempDir(),
		loader:   mocks.NewMockConfigLoader(ctrl),
		source:   mocks.NewMockPackageSource(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
		tarballs: make(map[string][]byte),
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.root, domain.ManifestFileName), []byte(rootManifest), 0o600))

	gitClient := mocks.NewMockGitClient(ctrl)
	scripts := mocks.NewMockScriptRunner(ctrl)
	observer := mocks.NewMockStepObserver(ctrl)
	observer.EXPECT().OnStep(gomock.Any(), gomock.Any()).AnyTimes()
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()

	reader := fs.NewManifestReader()
	pool := tarball.NewPool(f.logger, 2)
	f.app = app.New(
		f.loader,
		lockfile.NewStore(reader),
		ideal.NewBuilder(f.source, gitClient, pool, semver.NewPicker(), reader, f.logger),
		actual.NewBuilder(reader, fs.NewWalker(), f.logger),
		reify.NewReifier(f.source, gitClient, pool, scripts, f.logger),
		observer,
		f.logger,
	)

	f.cfg = &domain.Config{
		Root:          f.root,
		Registry:      registry,
		Jobs:          2,
		ScriptsEnable: true,
	}
	f.loader.EXPECT().Load(f.root).DoAndReturn(func(string) (*domain.Config, error) {
		return f.cfg, nil
	}).AnyTimes()
	f.source.EXPECT().FetchTarball(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.TarballRequest) (io.ReadCloser, error) {
			data, ok := f.tarballs[req.URL]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		}).AnyTimes()
	return f
}

// publish serves name from the registry with one tarball per version.
func (f *fixture) publish(t *testing.T, name string, versions ...string) {
	t.Helper()
	manifests := make([]*domain.Manifest, len(versions))
	for i, v := range versions {
		manifests[i] = &domain.Manifest{Name: name, Version: v}
	}
	f.serve(t, manifests...)
}

// serve publishes the versions of one package; the last one is tagged latest.
func (f *fixture) serve(t *testing.T, manifests ...*domain.Manifest) {
	t.Helper()
	name := manifests[0].Name
	p := &domain.Packument{
		Name:     name,
		DistTags: map[string]string{"latest": manifests[len(manifests)-1].Version},
		Versions: make(map[string]*domain.Manifest),
	}
	for _, m := range manifests {
		url := registry + name + "/-/" + m.Version + ".tgz"
		m.Dist = &domain.Dist{Tarball: url}
		p.Versions[m.Version] = m
		f.tarballs[url] = packTarball(t, m)
	}
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, name).Return(p, nil).AnyTimes()
}

func (f *fixture) writeManifest(t *testing.T, rel, content string) {
	t.Helper()
	dir := f.path(rel)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.ManifestFileName), []byte(content), 0o600))
}

func packTarball(t *testing.T, m *domain.Manifest) []byte {
	t.Helper()
	body, err := json.Marshal(m)
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/package.json", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func TestApp_InstallThenNoop(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0"}}`)
	f.publish(t, "a", "1.0.0", "1.1.0", "2.0.0")
	ctx := context.Background()

	res, err := f.app.Install(ctx, app.InstallOptions{Root: f.root})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Zero(t, res.Report.Len())
	require.Len(t, res.Diff.Nodes.Add, 1)
	assert.Equal(t, "1.1.0", res.Diff.Nodes.Add[0].Version)

	m, err := fs.NewManifestReader().Read(f.path("node_modules/a"))
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", m.Version)
	assert.FileExists(t, domain.DefaultLockfilePath(f.root))

	res, err = f.app.Install(ctx, app.InstallOptions{Root: f.root})
	require.NoError(t, err)
	assert.False(t, res.Diff.HasChanges())
	assert.False(t, res.Applied)
}

func TestApp_PlanLeavesDiskAlone(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0"}}`)
	f.publish(t, "a", "1.0.0")
	f.publish(t, "b", "2.0.0")

	res, err := f.app.Plan(context.Background(), app.InstallOptions{Root: f.root, Add: []string{"b@^2"}})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Len(t, res.Diff.Nodes.Add, 2)

	assert.NoDirExists(t, f.path("node_modules"))
	assert.NoFileExists(t, domain.DefaultLockfilePath(f.root))
}

func TestApp_InstallRemove(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0","b":"^2.0.0"}}`)
	f.publish(t, "a", "1.0.0")
	f.publish(t, "b", "2.0.0")
	ctx := context.Background()

	_, err := f.app.Install(ctx, app.InstallOptions{Root: f.root})
	require.NoError(t, err)
	require.DirExists(t, f.path("node_modules/b"))

	res, err := f.app.Install(ctx, app.InstallOptions{Root: f.root, Remove: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, res.Diff.Nodes.Delete, 1)
	assert.Equal(t, "b", res.Diff.Nodes.Delete[0].Name.String())
	assert.NoDirExists(t, f.path("node_modules/b"))
	assert.DirExists(t, f.path("node_modules/a"))
}

func TestApp_InstallReportsUnresolved(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0","ghost":"^1.0.0"}}`)
	f.publish(t, "a", "1.0.0")
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, "ghost").Return(nil, domain.ErrNotFound).AnyTimes()
	f.logger.EXPECT().Warn(gomock.Any())

	res, err := f.app.Install(context.Background(), app.InstallOptions{Root: f.root})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	entries := res.Report.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "ghost", entries[0].Spec.Name)
	assert.ErrorIs(t, entries[0].Err, domain.ErrNotFound)
	assert.True(t, res.Report.HasRequired())
}

func TestApp_FrozenLockfile(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0"}}`)
	f.publish(t, "a", "1.0.0")
	ctx := context.Background()

	_, err := f.app.Install(ctx, app.InstallOptions{Root: f.root, Frozen: true})
	require.ErrorIs(t, err, domain.ErrLockfileOutdated)
	assert.NoDirExists(t, f.path("node_modules"))

	_, err = f.app.Install(ctx, app.InstallOptions{Root: f.root})
	require.NoError(t, err)
	before, err := os.ReadFile(domain.DefaultLockfilePath(f.root))
	require.NoError(t, err)

	_, err = f.app.Install(ctx, app.InstallOptions{Root: f.root, Frozen: true})
	require.NoError(t, err)

	f.publish(t, "c", "1.0.0")
	_, err = f.app.Install(ctx, app.InstallOptions{Root: f.root, Frozen: true, Add: []string{"c"}})
	require.ErrorIs(t, err, domain.ErrLockfileOutdated)

	after, err := os.ReadFile(domain.DefaultLockfilePath(f.root))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestApp_ConfigError(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load(".").Return(nil, domain.ErrConfigInvalid)

	a := app.New(loader, nil, nil, nil, nil, nil, nil)
	_, err := a.Install(context.Background(), app.InstallOptions{})
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestApp_LockfileError(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	lockfiles := mocks.NewMockLockfileStore(ctrl)
	loader.EXPECT().Load("/p").Return(&domain.Config{Root: "/p"}, nil)
	lockfiles.EXPECT().Load("/p").Return(nil, domain.ErrLockfileCorrupt)

	a := app.New(loader, lockfiles, nil, nil, nil, nil, nil)
	_, err := a.Install(context.Background(), app.InstallOptions{Root: "/p"})
	require.ErrorIs(t, err, domain.ErrLockfileCorrupt)
}

func TestApp_ReinstallIsNoop(t *testing.T) {
	tests := []struct {
		name  string
		root  string
		setup func(t *testing.T, f *fixture)
		// warns is the number of warnings logged by each install.
		warns int
	}{
		{
			name: "Registry tree",
			root: `{"name":"root","dependencies":{"a":"^1.0.0"},"devDependencies":{"b":"^1.0.0"}}`,
			setup: func(t *testing.T, f *fixture) {
				f.serve(t, &domain.Manifest{Name: "a", Version: "1.0.0", Dependencies: map[string]string{"b": "^1.0.0"}})
				f.publish(t, "b", "1.0.0")
			},
		},
		{
			name: "Workspaces",
			root: `{"name":"root","dependencies":{"lib":"workspace:*"}}`,
			setup: func(t *testing.T, f *fixture) {
				f.writeManifest(t, "packages/lib", `{"name":"lib","version":"1.0.0","dependencies":{"a":"^1.0.0"}}`)
				f.writeManifest(t, "packages/leaf", `{"name":"leaf","version":"1.0.0"}`)
				f.cfg.Workspaces = []string{"packages/leaf", "packages/lib"}
				f.publish(t, "a", "1.0.0")
			},
		},
		{
			name: "File dependency",
			root: `{"name":"root","dependencies":{"local":"file:./vendor/local"}}`,
			setup: func(t *testing.T, f *fixture) {
				f.writeManifest(t, "vendor/local", `{"name":"local","version":"3.0.0","dependencies":{"a":"^1.0.0"}}`)
				f.publish(t, "a", "1.0.0")
			},
		},
		{
			name: "Peers",
			root: `{"name":"root","dependencies":{"a":"^1.0.0","b":"^1.0.0"}}`,
			setup: func(t *testing.T, f *fixture) {
				f.serve(t, &domain.Manifest{
					Name:                 "a",
					Version:              "1.0.0",
					DevDependencies:      map[string]string{"b": "^1.0.0", "tool": "^1.0.0"},
					PeerDependencies:     map[string]string{"b": "^1.0.0", "opt": "^1.0.0"},
					PeerDependenciesMeta: map[string]domain.PeerMeta{"opt": {Optional: true}},
				})
				f.publish(t, "b", "1.0.0")
			},
		},
		{
			name: "Unresolved dependency",
			root: `{"name":"root","dependencies":{"a":"^1.0.0","ghost":"^1.0.0"}}`,
			setup: func(t *testing.T, f *fixture) {
				f.publish(t, "a", "1.0.0")
				f.source.EXPECT().FetchPackument(gomock.Any(), registry, "ghost").Return(nil, domain.ErrNotFound).AnyTimes()
			},
			warns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.root)
			tt.setup(t, f)
			if tt.warns > 0 {
				f.logger.EXPECT().Warn(gomock.Any()).Times(3 * tt.warns)
			}
			ctx := context.Background()

			res, err := f.app.Install(ctx, app.InstallOptions{Root: f.root})
			require.NoError(t, err)
			require.True(t, res.Applied)

			res, err = f.app.Install(ctx, app.InstallOptions{Root: f.root})
			require.NoError(t, err)
			assert.False(t, res.Diff.HasChanges(), "diff after reinstall: %+v", res.Diff)
			assert.False(t, res.Applied)

			res, err = f.app.Install(ctx, app.InstallOptions{Root: f.root, Frozen: true})
			require.NoError(t, err)
			assert.False(t, res.Diff.HasChanges())
		})
	}
}

func TestApp_PeerDeclaredAsDevIsLinkedAsPeer(t *testing.T) {
	f := newFixture(t, `{"name":"root","dependencies":{"a":"^1.0.0","b":"^1.0.0"}}`)
	f.serve(t, &domain.Manifest{
		Name:             "a",
		Version:          "1.0.0",
		DevDependencies:  map[string]string{"b": "^1.0.0"},
		PeerDependencies: map[string]string{"b": "^1.0.0"},
	})
	f.publish(t, "b", "1.0.0")

	res, err := f.app.Install(context.Background(), app.InstallOptions{Root: f.root})
	require.NoError(t, err)

	aID := domain.NewRegistryID("", "a", "1.0.0")
	e, ok := res.Graph.EdgeOut(aID, "b")
	require.True(t, ok)
	assert.Equal(t, domain.DepPeer, e.Type)

	installed, err := actual.NewBuilder(fs.NewManifestReader(), fs.NewWalker(), f.logger).
		Build(context.Background(), actual.Options{ProjectRoot: f.root})
	require.NoError(t, err)
	e, ok = installed.EdgeOut(aID, "b")
	require.True(t, ok)
	assert.Equal(t, domain.DepPeer, e.Type)
	assert.Equal(t, domain.NewRegistryID("", "b", "1.0.0"), e.To)
}

func TestApp_FrozenLockfileWithWorkspaces(t *testing.T) {
	f := newFixture(t, `{"name":"root"}`)
	f.writeManifest(t, "packages/w", `{"name":"w","version":"1.0.0"}`)
	f.cfg.Workspaces = []string{"packages/w"}
	ctx := context.Background()

	_, err := f.app.Install(ctx, app.InstallOptions{Root: f.root})
	require.NoError(t, err)

	locked, err := lockfile.NewStore(fs.NewManifestReader()).Load(f.root)
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.True(t, locked.IsImporter(domain.NewWorkspaceID("packages/w")))

	res, err := f.app.Install(ctx, app.InstallOptions{Root: f.root, Frozen: true})
	require.NoError(t, err)
	assert.False(t, res.Diff.HasChanges())
}
