package domain

import (
	"net/url"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// SpecType is the kind of origin a specifier points at.
type SpecType string

const (
	// SpecRegistry is a semver range or dist-tag against a registry.
	SpecRegistry SpecType = "registry"
	// SpecGit is a git repository and ref.
	SpecGit SpecType = "git"
	// SpecFile is a local directory.
	SpecFile SpecType = "file"
	// SpecRemote is a tarball URL.
	SpecRemote SpecType = "remote"
	// SpecWorkspace is a sibling workspace.
	SpecWorkspace SpecType = "workspace"
)

// DefaultRegistryAlias is the alias written by users to point at the default registry.
const DefaultRegistryAlias = "npm"

// DefaultGitRef is the ref used when a git specifier names none.
const DefaultGitRef = "HEAD"

var (
	githubShorthand = regexp.MustCompile(`^[A-Za-z0-9._-]+/[A-Za-z0-9._-]+(#.*)?$`)
	hostShorthands  = map[string]string{
		"github:":    "https://github.com/",
		"gitlab:":    "https://gitlab.com/",
		"bitbucket:": "https://bitbucket.org/",
	}
)

// Spec is a parsed dependency specifier.
type Spec struct {
	// Name is the dependency name the specifier is declared under.
	Name string
	// Bare is the specifier as written.
	Bare string
	Type SpecType

	// Registry is the registry alias; empty for the default registry.
	Registry string
	// Package is the registry package to fetch. It differs from Name for aliases.
	Package string
	// Range is the semver range or dist-tag.
	Range string

	GitRepo string
	GitRef  string

	// Path is the file path or workspace path, relative to the declaring package.
	Path string
	URL  string
}

// ParseSpec parses a specifier declared as name: bare. Aliases of the form
// "<alias>:pkg@range" are recognized when alias is a key of registries or the
// default alias. Only structural problems are reported; an unsatisfiable or
// unparseable semver range is left for resolution to reject.
func ParseSpec(name, bare string, registries map[string]string) (Spec, error) {
	name = strings.TrimSpace(name)
	bare = strings.TrimSpace(bare)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return Spec{}, specError(name, bare, "invalid dependency name")
	}

	s := Spec{Name: name, Bare: bare}

	switch {
	case strings.HasPrefix(bare, "workspace:"):
		s.Type = SpecWorkspace
		s.Range = strings.TrimPrefix(bare, "workspace:")
		if s.Range == "" {
			s.Range = "*"
		}
		return s, nil

	case strings.HasPrefix(bare, "file:"):
		s.Type = SpecFile
		s.Path = strings.TrimPrefix(strings.TrimPrefix(bare, "file:"), "//")
		if s.Path == "" {
			return Spec{}, specError(name, bare, "file specifier requires a path")
		}
		return s, nil

	case strings.HasPrefix(bare, "./"), strings.HasPrefix(bare, "../"),
		strings.HasPrefix(bare, "/"), strings.HasPrefix(bare, "~/"),
		bare == ".", bare == "..":
		s.Type = SpecFile
		s.Path = bare
		return s, nil

	case strings.HasPrefix(bare, "git+"), strings.HasPrefix(bare, "git://"):
		return parseGitSpec(s, strings.TrimPrefix(bare, "git+"))

	case strings.HasPrefix(bare, "http://"), strings.HasPrefix(bare, "https://"):
		if _, err := url.Parse(bare); err != nil {
			return Spec{}, specError(name, bare, "invalid tarball url")
		}
		s.Type = SpecRemote
		s.URL = bare
		return s, nil
	}

	for prefix, host := range hostShorthands {
		if strings.HasPrefix(bare, prefix) {
			rest := strings.TrimPrefix(bare, prefix)
			if !githubShorthand.MatchString(rest) {
				return Spec{}, specError(name, bare, "invalid hosted git shorthand")
			}
			return parseGitSpec(s, host+rest)
		}
	}

	if githubShorthand.MatchString(bare) && !strings.HasPrefix(bare, "@") {
		return parseGitSpec(s, hostShorthands["github:"]+bare)
	}

	if alias, rest, ok := strings.Cut(bare, ":"); ok && isAliasName(alias) {
		if alias != DefaultRegistryAlias {
			if _, known := registries[alias]; !known {
				return Spec{}, specError(name, bare, "unknown registry alias "+alias)
			}
			s.Registry = alias
		}
		pkg, rng := splitNameRange(rest)
		if pkg == "" {
			return Spec{}, specError(name, bare, "alias specifier requires a package name")
		}
		s.Type = SpecRegistry
		s.Package = pkg
		s.Range = rng
		return s, nil
	}

	s.Type = SpecRegistry
	s.Package = name
	s.Range = bare
	if s.Range == "" {
		s.Range = "*"
	}
	return s, nil
}

// ParseAddSpec parses a "name@spec" argument, as written on a command line.
func ParseAddSpec(arg string, registries map[string]string) (Spec, error) {
	name, bare := splitNameRange(arg)
	if name == "" {
		return Spec{}, specError(arg, "", "missing package name")
	}
	if bare == "*" && !strings.HasSuffix(arg, "@*") {
		bare = "latest"
	}
	return ParseSpec(name, bare, registries)
}

// String returns name@bare.
func (s Spec) String() string {
	if s.Bare == "" {
		return s.Name
	}
	return s.Name + "@" + s.Bare
}

// IsZero reports whether the spec is unset.
func (s Spec) IsZero() bool {
	return s.Name == "" && s.Bare == ""
}

func parseGitSpec(s Spec, raw string) (Spec, error) {
	repo, ref, _ := strings.Cut(raw, "#")
	if repo == "" {
		return Spec{}, specError(s.Name, s.Bare, "git specifier requires a repository")
	}
	u, err := url.Parse(repo)
	if err != nil && !strings.Contains(repo, "@") {
		return Spec{}, specError(s.Name, s.Bare, "invalid git repository")
	}
	if u != nil && u.Scheme != "" && u.Host == "" {
		return Spec{}, specError(s.Name, s.Bare, "git repository has no host")
	}
	if ref == "" {
		ref = DefaultGitRef
	}
	s.Type = SpecGit
	s.GitRepo = repo
	s.GitRef = ref
	return s, nil
}

// splitNameRange splits "name@range" on the first '@' that is not the scope marker.
func splitNameRange(s string) (string, string) {
	if s == "" {
		return "", "*"
	}
	at := strings.Index(s[1:], "@") + 1
	if at <= 0 {
		return s, "*"
	}
	rng := s[at+1:]
	if rng == "" {
		rng = "*"
	}
	return s[:at], rng
}

func isAliasName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func specError(name, bare, reason string) error {
	return zerr.With(zerr.With(zerr.Wrap(ErrSpecParse, reason), "name", name), "spec", bare)
}
