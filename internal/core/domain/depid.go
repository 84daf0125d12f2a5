package domain

import (
	"net/url"
	"strings"

	"go.trai.ch/zerr"
)

// DepIDDelimiter separates the fields of an encoded DepID.
const DepIDDelimiter = "·"

// DepKind identifies how a package instance was obtained.
type DepKind string

const (
	// KindRegistry is a package resolved from a registry by name and version.
	KindRegistry DepKind = "registry"
	// KindGit is a package resolved from a git repository at a commit.
	KindGit DepKind = "git"
	// KindFile is a package read from a local directory.
	KindFile DepKind = "file"
	// KindRemote is a package downloaded from a tarball URL.
	KindRemote DepKind = "remote"
	// KindWorkspace is a package that is one of the project's workspaces.
	KindWorkspace DepKind = "workspace"
)

// kindTags maps kinds to their encoded prefix. Registry ids have an empty tag.
var kindTags = map[DepKind]string{
	KindRegistry:  "",
	KindGit:       "git",
	KindFile:      "file",
	KindRemote:    "remote",
	KindWorkspace: "workspace",
}

var tagKinds = func() map[string]DepKind {
	m := make(map[string]DepKind, len(kindTags))
	for k, tag := range kindTags {
		m[tag] = k
	}
	return m
}()

// DepID is the canonical key of a resolved package origin.
// The zero value is the "missing" id used by unresolved edges.
type DepID string

// DepIDFields holds the decoded fields of a DepID.
// Only the fields relevant to Kind are populated.
type DepIDFields struct {
	Kind       DepKind
	Registry   string // registry alias, empty for the default registry
	Name       string // registry package name
	Version    string // registry package version
	Repo       string // git repository
	Committish string // git commit
	Path       string // file or workspace path
	URL        string // remote tarball URL
}

// NewRegistryID returns the id of a registry package. An empty alias denotes the default registry.
func NewRegistryID(alias, name, version string) DepID {
	return DepID(DepIDDelimiter + escapeField(alias) + DepIDDelimiter + escapeField(name) + "@" + escapeVersion(version))
}

// NewGitID returns the id of a git package at a commit.
func NewGitID(repo, committish string) DepID {
	return joinID(KindGit, repo, committish)
}

// NewFileID returns the id of a package read from a local path.
func NewFileID(path string) DepID {
	return joinID(KindFile, path)
}

// NewRemoteID returns the id of a package downloaded from a tarball URL.
func NewRemoteID(tarballURL string) DepID {
	return joinID(KindRemote, tarballURL)
}

// NewWorkspaceID returns the id of a workspace package.
func NewWorkspaceID(path string) DepID {
	return joinID(KindWorkspace, path)
}

// EncodeDepID encodes fields into a DepID.
func EncodeDepID(f DepIDFields) (DepID, error) {
	switch f.Kind {
	case KindRegistry:
		if f.Name == "" || f.Version == "" {
			return "", malformed("", "registry id requires name and version")
		}
		return NewRegistryID(f.Registry, f.Name, f.Version), nil
	case KindGit:
		if f.Repo == "" || f.Committish == "" {
			return "", malformed("", "git id requires repo and committish")
		}
		return NewGitID(f.Repo, f.Committish), nil
	case KindFile:
		if f.Path == "" {
			return "", malformed("", "file id requires a path")
		}
		return NewFileID(f.Path), nil
	case KindRemote:
		if f.URL == "" {
			return "", malformed("", "remote id requires a url")
		}
		return NewRemoteID(f.URL), nil
	case KindWorkspace:
		if f.Path == "" {
			return "", malformed("", "workspace id requires a path")
		}
		return NewWorkspaceID(f.Path), nil
	default:
		return "", malformed("", "unknown kind "+string(f.Kind))
	}
}

// ParseDepID decodes a DepID string. It is the exact inverse of EncodeDepID:
// any string that would not be produced by the encoder is rejected.
func ParseDepID(s string) (DepIDFields, error) {
	parts := strings.Split(s, DepIDDelimiter)
	kind, ok := tagKinds[parts[0]]
	if !ok || len(parts) < 2 {
		return DepIDFields{}, malformed(s, "unknown kind")
	}

	want := 2
	if kind == KindRegistry || kind == KindGit {
		want = 3
	}
	if len(parts) != want {
		return DepIDFields{}, malformed(s, "unexpected field count")
	}

	fields := DepIDFields{Kind: kind}
	var err error
	switch kind {
	case KindRegistry:
		fields.Registry, err = unescapeField(parts[1])
		if err != nil {
			return DepIDFields{}, malformed(s, "bad registry alias")
		}
		at := strings.LastIndex(parts[2], "@")
		if at <= 0 || at == len(parts[2])-1 {
			return DepIDFields{}, malformed(s, "registry id requires name@version")
		}
		if fields.Name, err = unescapeField(parts[2][:at]); err != nil {
			return DepIDFields{}, malformed(s, "bad package name")
		}
		if fields.Version, err = unescapeField(parts[2][at+1:]); err != nil {
			return DepIDFields{}, malformed(s, "bad package version")
		}
	case KindGit:
		if fields.Repo, err = unescapeField(parts[1]); err != nil {
			return DepIDFields{}, malformed(s, "bad git repository")
		}
		if fields.Committish, err = unescapeField(parts[2]); err != nil {
			return DepIDFields{}, malformed(s, "bad git committish")
		}
	case KindFile, KindWorkspace:
		if fields.Path, err = unescapeField(parts[1]); err != nil {
			return DepIDFields{}, malformed(s, "bad path")
		}
	case KindRemote:
		if fields.URL, err = unescapeField(parts[1]); err != nil {
			return DepIDFields{}, malformed(s, "bad url")
		}
	}

	reencoded, err := EncodeDepID(fields)
	if err != nil || string(reencoded) != s {
		return DepIDFields{}, malformed(s, "non-canonical encoding")
	}
	return fields, nil
}

// Kind returns the kind of the id, or an empty kind when the id is malformed.
func (id DepID) Kind() DepKind {
	tag, _, ok := strings.Cut(string(id), DepIDDelimiter)
	if !ok {
		return ""
	}
	return tagKinds[tag]
}

// Fields decodes the id.
func (id DepID) Fields() (DepIDFields, error) {
	return ParseDepID(string(id))
}

// IsMissing reports whether the id is the zero value used for unresolved edges.
func (id DepID) IsMissing() bool {
	return id == ""
}

// StoreSegment returns the single path segment naming this package's store entry.
// Encoded ids never contain a path separator.
func (id DepID) StoreSegment() string {
	return string(id)
}

// Compare orders ids bytewise.
func (id DepID) Compare(other DepID) int {
	return strings.Compare(string(id), string(other))
}

func (id DepID) String() string {
	return string(id)
}

func joinID(kind DepKind, fields ...string) DepID {
	var b strings.Builder
	b.WriteString(kindTags[kind])
	for _, f := range fields {
		b.WriteString(DepIDDelimiter)
		b.WriteString(escapeField(f))
	}
	return DepID(b.String())
}

// escapeField percent-encodes a field so that it contains neither the
// delimiter nor a path separator.
func escapeField(s string) string {
	return url.PathEscape(s)
}

// escapeVersion additionally encodes '@' so the name/version split on the last '@' is unambiguous.
func escapeVersion(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "@", "%40")
}

func unescapeField(s string) (string, error) {
	return url.PathUnescape(s)
}

func malformed(id, reason string) error {
	return zerr.With(zerr.Wrap(ErrMalformedDepID, reason), "id", id)
}
