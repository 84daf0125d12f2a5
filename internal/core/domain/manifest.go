package domain

import (
	"encoding/json"
	"maps"
	"path"
	"slices"
	"strings"
)

// DependencyTypeLong names a dependency map of a manifest.
type DependencyTypeLong string

const (
	// DepsProd is the "dependencies" map.
	DepsProd DependencyTypeLong = "dependencies"
	// DepsDev is the "devDependencies" map.
	DepsDev DependencyTypeLong = "devDependencies"
	// DepsOptional is the "optionalDependencies" map.
	DepsOptional DependencyTypeLong = "optionalDependencies"
	// DepsPeer is the "peerDependencies" map.
	DepsPeer DependencyTypeLong = "peerDependencies"
)

// DependencyTypesLong lists the manifest dependency maps in resolution order.
// optionalDependencies comes after dependencies so that it wins when a name appears in both.
var DependencyTypesLong = []DependencyTypeLong{DepsProd, DepsOptional, DepsDev, DepsPeer}

// DependencyType is the type of an edge.
type DependencyType string

const (
	// DepProd is a regular dependency.
	DepProd DependencyType = "prod"
	// DepDev is a development dependency, installed only on importers.
	DepDev DependencyType = "dev"
	// DepOptional is a dependency whose failure does not fail the install.
	DepOptional DependencyType = "optional"
	// DepPeer is a dependency expected to be provided by the dependent's parent.
	DepPeer DependencyType = "peer"
	// DepPeerOptional is a peer dependency marked optional in peerDependenciesMeta.
	DepPeerOptional DependencyType = "peerOptional"
)

// ParseDependencyType validates an edge type string.
func ParseDependencyType(s string) (DependencyType, bool) {
	switch t := DependencyType(s); t {
	case DepProd, DepDev, DepOptional, DepPeer, DepPeerOptional:
		return t, true
	default:
		return "", false
	}
}

// IsPeer reports whether the edge type is a peer type.
func (t DependencyType) IsPeer() bool {
	return t == DepPeer || t == DepPeerOptional
}

// IsOptional reports whether a failure on this edge type may be tolerated.
func (t DependencyType) IsOptional() bool {
	return t == DepOptional || t == DepPeerOptional
}

// PeerMeta is an entry of peerDependenciesMeta.
type PeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// Dist holds the distribution information of a registry manifest.
type Dist struct {
	Tarball   string `json:"tarball,omitempty"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// Bin holds the "bin" field of a manifest, which is either a single path or a map.
type Bin struct {
	Path string
	Map  map[string]string
}

// UnmarshalJSON accepts either a string or an object.
func (b *Bin) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		b.Path = single
		b.Map = nil
		return nil
	}
	b.Path = ""
	return json.Unmarshal(data, &b.Map)
}

// MarshalJSON writes the original shape back.
func (b Bin) MarshalJSON() ([]byte, error) {
	if b.Map == nil {
		return json.Marshal(b.Path)
	}
	return json.Marshal(b.Map)
}

// Workspaces holds the "workspaces" field, which is a list or an object with a packages list.
type Workspaces []string

// UnmarshalJSON accepts either a list or {"packages": [...]}.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*w = obj.Packages
	return nil
}

// Manifest is a parsed package.json.
type Manifest struct {
	Name                 string              `json:"name,omitempty"`
	Version              string              `json:"version,omitempty"`
	Dependencies         map[string]string   `json:"dependencies,omitempty"`
	DevDependencies      map[string]string   `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string   `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string   `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Bin                  *Bin                `json:"bin,omitempty"`
	Scripts              map[string]string   `json:"scripts,omitempty"`
	Workspaces           Workspaces          `json:"workspaces,omitempty"`
	Dist                 *Dist               `json:"dist,omitempty"`
}

// ParseManifest decodes package.json bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DependencyMap returns the dependency map of the given type, or nil.
func (m *Manifest) DependencyMap(t DependencyTypeLong) map[string]string {
	if m == nil {
		return nil
	}
	switch t {
	case DepsProd:
		return m.Dependencies
	case DepsDev:
		return m.DevDependencies
	case DepsOptional:
		return m.OptionalDependencies
	case DepsPeer:
		return m.PeerDependencies
	default:
		return nil
	}
}

// EdgeType returns the edge type used for a dependency listed in the given map.
func (m *Manifest) EdgeType(t DependencyTypeLong, name string) DependencyType {
	switch t {
	case DepsDev:
		return DepDev
	case DepsOptional:
		return DepOptional
	case DepsPeer:
		if m != nil && m.PeerDependenciesMeta[name].Optional {
			return DepPeerOptional
		}
		return DepPeer
	default:
		return DepProd
	}
}

// DependencyOf returns the map type and specifier under which name is installed.
// The later maps in DependencyTypesLong take precedence, except that peer
// entries never shadow a regular declaration. Dev dependencies only count for
// importers; elsewhere a name listed as dev and peer is a peer.
func (m *Manifest) DependencyOf(name string, importer bool) (DependencyTypeLong, string, bool) {
	for _, t := range []DependencyTypeLong{DepsOptional, DepsProd, DepsDev, DepsPeer} {
		if t == DepsDev && !importer {
			continue
		}
		if spec, ok := m.DependencyMap(t)[name]; ok {
			return t, spec, true
		}
	}
	return "", "", false
}

// DependencyNames returns the sorted names DependencyOf reports as installed.
func (m *Manifest) DependencyNames(importer bool) []string {
	names := make(map[string]struct{})
	for _, t := range DependencyTypesLong {
		if t == DepsDev && !importer {
			continue
		}
		for name := range m.DependencyMap(t) {
			names[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(names))
}

// Bins returns the executables exposed by the package, keyed by command name.
func (m *Manifest) Bins() map[string]string {
	if m == nil || m.Bin == nil {
		return nil
	}
	if m.Bin.Map != nil {
		return m.Bin.Map
	}
	if m.Bin.Path == "" || m.Name == "" {
		return nil
	}
	return map[string]string{path.Base(m.Name): m.Bin.Path}
}

// HasScript reports whether the manifest defines a non-empty script.
func (m *Manifest) HasScript(name string) bool {
	return m != nil && strings.TrimSpace(m.Scripts[name]) != ""
}

// Packument is the registry document listing every published version of a package.
type Packument struct {
	Name     string               `json:"name"`
	DistTags map[string]string    `json:"dist-tags"`
	Versions map[string]*Manifest `json:"versions"`
}

// VersionList returns the published versions in sorted string order.
func (p *Packument) VersionList() []string {
	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

// ParsePackument parses a registry packument document.
func ParsePackument(data []byte) (*Packument, error) {
	var p Packument
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
