package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/core/domain"
)

func TestParseManifest(t *testing.T) {
	m, err := domain.ParseManifest([]byte(`{
		"name": "@scope/tool",
		"version": "1.2.3",
		"bin": "./cli.js",
		"dependencies": {"a": "^1"},
		"devDependencies": {"b": "^2"},
		"optionalDependencies": {"c": "^3"},
		"peerDependencies": {"d": "^4", "e": "*"},
		"peerDependenciesMeta": {"e": {"optional": true}},
		"scripts": {"postinstall": "node x.js", "prepare": "  "},
		"workspaces": {"packages": ["packages/*"]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"tool": "./cli.js"}, m.Bins())
	assert.Equal(t, map[string]string{"a": "^1"}, m.DependencyMap(domain.DepsProd))
	assert.Equal(t, domain.DepDev, m.EdgeType(domain.DepsDev, "b"))
	assert.Equal(t, domain.DepOptional, m.EdgeType(domain.DepsOptional, "c"))
	assert.Equal(t, domain.DepPeer, m.EdgeType(domain.DepsPeer, "d"))
	assert.Equal(t, domain.DepPeerOptional, m.EdgeType(domain.DepsPeer, "e"))
	assert.True(t, m.HasScript("postinstall"))
	assert.False(t, m.HasScript("prepare"))
	assert.Equal(t, domain.Workspaces{"packages/*"}, m.Workspaces)

	typ, spec, ok := m.DependencyOf("c", false)
	require.True(t, ok)
	assert.Equal(t, domain.DepsOptional, typ)
	assert.Equal(t, "^3", spec)
}

func TestManifest_DependencyOf(t *testing.T) {
	m := &domain.Manifest{
		Dependencies:     map[string]string{"a": "^1"},
		DevDependencies:  map[string]string{"b": "^2", "tool": "^3"},
		PeerDependencies: map[string]string{"b": ">=2", "a": "*"},
	}

	typ, spec, ok := m.DependencyOf("b", true)
	require.True(t, ok)
	assert.Equal(t, domain.DepsDev, typ)
	assert.Equal(t, "^2", spec)

	typ, spec, ok = m.DependencyOf("b", false)
	require.True(t, ok)
	assert.Equal(t, domain.DepsPeer, typ)
	assert.Equal(t, ">=2", spec)

	typ, _, ok = m.DependencyOf("a", false)
	require.True(t, ok)
	assert.Equal(t, domain.DepsProd, typ, "peers never shadow a regular declaration")

	_, _, ok = m.DependencyOf("tool", false)
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b", "tool"}, m.DependencyNames(true))
	assert.Equal(t, []string{"a", "b"}, m.DependencyNames(false))

	var none *domain.Manifest
	assert.Empty(t, none.DependencyNames(true))
}

func TestManifest_BinMap(t *testing.T) {
	m, err := domain.ParseManifest([]byte(`{"name":"x","bin":{"a":"bin/a","b":"bin/b"},"workspaces":["w/*"]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "bin/a", "b": "bin/b"}, m.Bins())
	assert.Equal(t, domain.Workspaces{"w/*"}, m.Workspaces)

	out, err := json.Marshal(m.Bin)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"bin/a","b":"bin/b"}`, string(out))
}

func TestPackument_VersionList(t *testing.T) {
	p := domain.Packument{Versions: map[string]*domain.Manifest{"2.0.0": {}, "1.0.0": {}}}
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, p.VersionList())
}
