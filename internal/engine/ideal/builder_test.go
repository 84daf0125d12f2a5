package ideal_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/fs"
	"go.trai.ch/nest/internal/adapters/semver"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/core/ports/mocks"
	"go.trai.ch/nest/internal/engine/ideal"
	"go.uber.org/mock/gomock"
)

const registry = "https://registry.example/"

type fixture struct {
	root     string
	source   *mocks.MockPackageSource
	git      *mocks.MockGitClient
	unpacker *mocks.MockUnpacker
	logger   *mocks.MockLogger
	builder  *ideal.Builder
}

func newFixture(t *testing.T, rootManifest string) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		root:     t.TempDir(),
		source:   mocks.NewMockPackageSource(ctrl),
		git:      mocks.NewMockGitClient(ctrl),
		unpacker: mocks.NewMockUnpacker(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
	}
	writeManifest(t, f.root, rootManifest)
	f.builder = ideal.NewBuilder(f.source, f.git, f.unpacker, semver.NewPicker(), fs.NewManifestReader(), f.logger)
	return f
}

func (f *fixture) options() ideal.Options {
	return ideal.Options{ProjectRoot: f.root, Registry: registry, Jobs: 4}
}

// publish makes FetchPackument serve name with the given versions, each mapped to its dependencies.
func (f *fixture) publish(name string, versions map[string]map[string]string) {
	p := &domain.Packument{Name: name, Versions: make(map[string]*domain.Manifest)}
	for v, deps := range versions {
		p.Versions[v] = &domain.Manifest{
			Name:         name,
			Version:      v,
			Dependencies: deps,
			Dist:         &domain.Dist{Tarball: registry + name + "/-/" + v + ".tgz", Integrity: "sha512-" + name + v},
		}
	}
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, name).Return(p, nil).AnyTimes()
}

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0o600))
}

var rootID = domain.NewFileID(".")

func target(t *testing.T, g *domain.Graph, from domain.DepID, name string) *domain.Edge {
	t.Helper()
	e, ok := g.EdgeOut(from, name)
	require.True(t, ok, "edge %s -> %s", from, name)
	return e
}

func TestBuild_RegistryTree(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"a":"^1.0.0"},"devDependencies":{"b":"^2.0.0"}}`)
	f.publish("a", map[string]map[string]string{"1.0.0": nil, "1.4.0": {"c": "^1"}, "2.0.0": nil})
	f.publish("b", map[string]map[string]string{"2.1.0": {"c": "^1.1", "d": "*"}})
	f.publish("c", map[string]map[string]string{"1.0.0": nil, "1.2.0": nil})
	f.publish("d", map[string]map[string]string{"0.1.0": nil})

	g, report, err := f.builder.Build(context.Background(), f.options())
	require.NoError(t, err)
	assert.Zero(t, report.Len())

	a := domain.NewRegistryID("", "a", "1.4.0")
	b := domain.NewRegistryID("", "b", "2.1.0")
	c := domain.NewRegistryID("", "c", "1.2.0")
	d := domain.NewRegistryID("", "d", "0.1.0")

	assert.Equal(t, a, target(t, g, rootID, "a").To)
	assert.Equal(t, domain.DepDev, target(t, g, rootID, "b").Type)
	assert.Equal(t, c, target(t, g, a, "c").To)
	assert.Equal(t, c, target(t, g, b, "c").To, "shared dependency is deduplicated")
	assert.Equal(t, 5, g.NodeCount())

	an, _ := g.Node(a)
	assert.Equal(t, "sha512-a1.4.0", an.Integrity)
	assert.Equal(t, registry+"a/-/1.4.0.tgz", an.Resolved)
	assert.Equal(t, domain.StoreLocation(a, "a"), an.Location)

	cn, _ := g.Node(c)
	assert.False(t, cn.Dev, "reachable through prod")
	dn, _ := g.Node(d)
	assert.True(t, dn.Dev)
	require.NoError(t, g.Validate())
}

func TestBuild_Deterministic(t *testing.T) {
	build := func() string {
		f := newFixture(t, `{"name":"app","dependencies":{"a":"1","b":"1","c":"1"}}`)
		for _, name := range []string{"a", "b", "c"} {
			f.publish(name, map[string]map[string]string{"1.0.0": {"x": "*"}})
		}
		f.publish("x", map[string]map[string]string{"1.0.0": nil})

		g, _, err := f.builder.Build(context.Background(), f.options())
		require.NoError(t, err)
		var sb strings.Builder
		for e := range g.Edges() {
			sb.WriteString(string(e.From) + " " + e.Name + " " + string(e.To) + "\n")
		}
		return sb.String()
	}
	first := build()
	for range 5 {
		assert.Equal(t, first, build())
	}
}

func TestBuild_UnresolvedBecomesMissingEdge(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"gone":"^1","a":"^9"},"optionalDependencies":{"flaky":"1"}}`)
	f.publish("a", map[string]map[string]string{"1.0.0": nil})
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, "gone").Return(nil, domain.ErrNotFound)
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, "flaky").Return(nil, domain.ErrNetwork)
	f.logger.EXPECT().Warn(gomock.Any()).Times(3)

	g, report, err := f.builder.Build(context.Background(), f.options())
	require.NoError(t, err)

	assert.Len(t, g.MissingEdges(), 3)
	entries := report.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Spec.Name)
	assert.ErrorIs(t, entries[0].Err, domain.ErrResolution)
	assert.ErrorIs(t, entries[1].Err, domain.ErrNetwork)
	assert.ErrorIs(t, entries[2].Err, domain.ErrNotFound)
	assert.True(t, report.HasRequired())
}

func TestBuild_SpecParseAborts(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"bad":"file:"}}`)

	_, _, err := f.builder.Build(context.Background(), f.options())
	assert.ErrorIs(t, err, domain.ErrSpecParse)
}

func TestBuild_Peers(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"react":"^18.0.0","plugin":"1"}}`)
	f.publish("react", map[string]map[string]string{"18.2.0": nil, "19.0.0": nil})
	p := &domain.Packument{Name: "plugin", Versions: map[string]*domain.Manifest{"1.0.0": {
		Name:                 "plugin",
		Version:              "1.0.0",
		PeerDependencies:     map[string]string{"react": ">=17", "dom": "^1", "extra": "^2"},
		PeerDependenciesMeta: map[string]domain.PeerMeta{"extra": {Optional: true}},
	}}}
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, "plugin").Return(p, nil)
	f.publish("dom", map[string]map[string]string{"1.3.0": nil})

	g, report, err := f.builder.Build(context.Background(), f.options())
	require.NoError(t, err)
	assert.Zero(t, report.Len())

	plugin := domain.NewRegistryID("", "plugin", "1.0.0")
	react := target(t, g, plugin, "react")
	assert.Equal(t, domain.DepPeer, react.Type)
	assert.Equal(t, domain.NewRegistryID("", "react", "18.2.0"), react.To, "links the existing node")

	dom := target(t, g, plugin, "dom")
	assert.Equal(t, domain.NewRegistryID("", "dom", "1.3.0"), dom.To, "required peer is resolved")

	extra := target(t, g, plugin, "extra")
	assert.True(t, extra.Missing())
	assert.Equal(t, domain.DepPeerOptional, extra.Type)
}

func TestBuild_Workspaces(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"lib":"workspace:*"}}`)
	writeManifest(t, filepath.Join(f.root, "packages", "lib"), `{"name":"lib","version":"1.0.0","dependencies":{"a":"^1","util":"^1"},"devDependencies":{"t":"1"}}`)
	writeManifest(t, filepath.Join(f.root, "packages", "util"), `{"name":"util","version":"1.1.0"}`)
	f.publish("a", map[string]map[string]string{"1.0.0": nil})
	f.publish("t", map[string]map[string]string{"1.0.0": nil})

	opts := f.options()
	opts.Workspaces = []string{"packages/lib", "packages/util"}
	g, _, err := f.builder.Build(context.Background(), opts)
	require.NoError(t, err)

	lib := domain.NewWorkspaceID("packages/lib")
	assert.Equal(t, lib, target(t, g, rootID, "lib").To)
	assert.Equal(t, domain.NewRegistryID("", "a", "1.0.0"), target(t, g, lib, "a").To)
	assert.Equal(t, domain.NewWorkspaceID("packages/util"), target(t, g, lib, "util").To, "a satisfying workspace wins over the registry")
	assert.Equal(t, domain.DepDev, target(t, g, lib, "t").Type, "workspaces install their dev dependencies")
	assert.Len(t, g.Importers(), 3)
}

func TestBuild_FileGitRemote(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{
		"local":"file:./vendor/local",
		"repo":"github:o/r#v1",
		"tar":"https://cdn.example/t.tgz"
	}}`)
	writeManifest(t, filepath.Join(f.root, "vendor", "local"), `{"name":"local","version":"0.0.1"}`)

	ref := ports.GitRef{SHA: strings.Repeat("ab", 20), Type: ports.GitRefTag, Name: "refs/tags/v1"}
	f.git.EXPECT().ResolveRef(gomock.Any(), "https://github.com/o/r", "v1", false).Return(ref, nil)
	f.git.EXPECT().ReadManifest(gomock.Any(), "https://github.com/o/r", ref).Return(&domain.Manifest{Name: "r", Version: "1.0.0"}, nil)
	f.source.EXPECT().FetchTarball(gomock.Any(), ports.TarballRequest{URL: "https://cdn.example/t.tgz"}).
		Return(io.NopCloser(strings.NewReader("tar")), nil)
	f.unpacker.EXPECT().ReadManifest(gomock.Any(), gomock.Any()).Return(&domain.Manifest{Name: "t", Version: "2.0.0"}, nil)

	g, _, err := f.builder.Build(context.Background(), f.options())
	require.NoError(t, err)

	local := target(t, g, rootID, "local")
	assert.Equal(t, domain.NewFileID("vendor/local"), local.To)
	n, _ := g.Node(local.To)
	assert.Equal(t, "vendor/local", n.Location)

	repo := target(t, g, rootID, "repo")
	assert.Equal(t, domain.NewGitID("https://github.com/o/r", ref.SHA), repo.To)
	n, _ = g.Node(repo.To)
	assert.True(t, n.InStore())

	tar := target(t, g, rootID, "tar")
	assert.Equal(t, domain.NewRemoteID("https://cdn.example/t.tgz"), tar.To)
}

func TestBuild_AddRemoveOverrides(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"old":"1","a":"1"}}`)
	f.publish("a", map[string]map[string]string{"1.0.0": {"b": "^1"}})
	f.publish("b", map[string]map[string]string{"1.0.0": nil, "2.0.0": nil})
	f.publish("new", map[string]map[string]string{"3.0.0": nil})

	opts := f.options()
	opts.Add = []string{"new@^3"}
	opts.Remove = []string{"old"}
	opts.Overrides = map[string]string{"b": "2.0.0"}
	g, _, err := f.builder.Build(context.Background(), opts)
	require.NoError(t, err)

	_, ok := g.EdgeOut(rootID, "old")
	assert.False(t, ok)
	added := target(t, g, rootID, "new")
	assert.Equal(t, domain.DepProd, added.Type)
	assert.Equal(t, "^3", added.Spec.Bare)

	b := target(t, g, domain.NewRegistryID("", "a", "1.0.0"), "b")
	assert.Equal(t, domain.NewRegistryID("", "b", "2.0.0"), b.To)
	assert.True(t, b.Overridden)
}

func TestBuild_LockfilePinsVersions(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"a":"^1.0.0","b":"^1.0.0"}}`)
	f.publish("a", map[string]map[string]string{"1.0.0": nil, "1.5.0": nil})
	f.publish("b", map[string]map[string]string{"1.0.0": nil, "1.5.0": nil})

	lock := domain.NewGraph(f.root)
	root := lock.AddImporter(domain.NewNode(rootID, "app", "", nil))
	for _, name := range []string{"a", "b"} {
		n := lock.AddNode(domain.NewNode(domain.NewRegistryID("", name, "1.0.0"), name, "1.0.0", nil))
		bare := "^1.0.0"
		if name == "b" {
			bare = "^0.9.0"
		}
		require.NoError(t, lock.AddEdge(&domain.Edge{From: root.ID, To: n.ID, Name: name, Type: domain.DepProd, Spec: domain.Spec{Name: name, Bare: bare}}))
	}

	opts := f.options()
	opts.Lockfile = lock
	g, _, err := f.builder.Build(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, domain.NewRegistryID("", "a", "1.0.0"), target(t, g, rootID, "a").To, "unchanged spec keeps the locked version")
	assert.Equal(t, domain.NewRegistryID("", "b", "1.5.0"), target(t, g, rootID, "b").To, "changed spec resolves again")
}

func TestBuild_LockfileReadsInstalledStore(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"a":"^1.0.0"}}`)
	id := domain.NewRegistryID("", "a", "1.0.0")
	writeManifest(t, filepath.Join(f.root, filepath.FromSlash(domain.StoreLocation(id, "a"))), `{"name":"a","version":"1.0.0"}`)

	lock := domain.NewGraph(f.root)
	root := lock.AddImporter(domain.NewNode(rootID, "app", "", nil))
	n := lock.AddNode(domain.NewNode(id, "a", "1.0.0", nil))
	n.Integrity = "sha512-locked"
	require.NoError(t, lock.AddEdge(&domain.Edge{From: root.ID, To: id, Name: "a", Type: domain.DepProd, Spec: domain.Spec{Name: "a", Bare: "^1.0.0"}}))

	opts := f.options()
	opts.Lockfile = lock
	g, _, err := f.builder.Build(context.Background(), opts)
	require.NoError(t, err)

	got, ok := g.Node(id)
	require.True(t, ok)
	assert.Equal(t, "sha512-locked", got.Integrity)
}

func TestBuild_Cancelled(t *testing.T) {
	f := newFixture(t, `{"name":"app","dependencies":{"a":"1"}}`)
	ctx, cancel := context.WithCancel(context.Background())
	f.source.EXPECT().FetchPackument(gomock.Any(), registry, "a").DoAndReturn(
		func(ctx context.Context, _, _ string) (*domain.Packument, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		})

	observer := mocks.NewMockStepObserver(gomock.NewController(t))
	observer.EXPECT().OnStep("resolve ideal tree", ports.PhaseStart)
	observer.EXPECT().OnStep("resolve ideal tree", ports.PhaseError)

	opts := f.options()
	opts.Observer = observer
	g, _, err := f.builder.Build(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, g)
}
