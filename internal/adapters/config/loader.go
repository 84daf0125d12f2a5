// Package config provides the project configuration loader for nest.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Defaults applied when nest.yaml leaves a field unset.
const (
	DefaultCacheTTL     = 24 * time.Hour
	DefaultFetchRetries = 3
	DefaultFetchTimeout = 30 * time.Second
	DefaultShell        = "sh"
)

// Environment variables overriding nest.yaml.
const (
	EnvRegistry = "NEST_REGISTRY"
	EnvCacheDir = "NEST_CACHE_DIR"
)

// Loader implements ports.ConfigLoader using nest.yaml and package.json.
type Loader struct {
	Logger ports.Logger
	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, Getenv: os.Getenv}
}

// Load reads the configuration of the project at root.
func (l *Loader) Load(root string) (*domain.Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve project root")
	}

	var file Nestfile
	if err := readNestfile(filepath.Join(absRoot, domain.ConfigFileName), &file); err != nil {
		return nil, err
	}

	cfg := &domain.Config{
		Root:          absRoot,
		Registry:      domain.DefaultRegistryURL,
		Registries:    map[string]string{},
		Overrides:     file.Overrides,
		Jobs:          runtime.NumCPU(),
		CacheTTL:      DefaultCacheTTL,
		FetchRetries:  DefaultFetchRetries,
		FetchTimeout:  DefaultFetchTimeout,
		ScriptsEnable: true,
		ScriptShell:   DefaultShell,
	}

	if err := l.applyFile(cfg, &file); err != nil {
		return nil, err
	}
	l.applyEnv(cfg)

	cfg.Registries[domain.DefaultRegistryAlias] = cfg.Registry

	patterns, err := l.workspacePatterns(absRoot, file.Workspaces)
	if err != nil {
		return nil, err
	}
	cfg.Workspaces, err = l.resolveWorkspaces(absRoot, patterns)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) applyFile(cfg *domain.Config, file *Nestfile) error {
	if file.Registry != "" {
		reg, err := normalizeRegistry("registry", file.Registry)
		if err != nil {
			return err
		}
		cfg.Registry = reg
	}

	for alias, u := range file.Registries {
		if alias == "" || strings.ContainsAny(alias, "@/:") {
			return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "invalid registry alias"), "alias", alias)
		}
		reg, err := normalizeRegistry("registries."+alias, u)
		if err != nil {
			return err
		}
		cfg.Registries[alias] = reg
	}

	if file.Jobs < 0 {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "jobs must not be negative"), "jobs", file.Jobs)
	}
	if file.Jobs > 0 {
		cfg.Jobs = file.Jobs
	}

	cfg.CacheDir = file.Cache.Dir
	if file.Cache.TTL != "" {
		ttl, err := parseDuration("cache.ttl", file.Cache.TTL)
		if err != nil {
			return err
		}
		cfg.CacheTTL = ttl
	}

	if r := file.Fetch.Retries; r != nil {
		if *r < 0 {
			return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "fetch.retries must not be negative"), "retries", *r)
		}
		cfg.FetchRetries = *r
	}
	if file.Fetch.Timeout != "" {
		timeout, err := parseDuration("fetch.timeout", file.Fetch.Timeout)
		if err != nil {
			return err
		}
		cfg.FetchTimeout = timeout
	}

	if file.Scripts.Enabled != nil {
		cfg.ScriptsEnable = *file.Scripts.Enabled
	}
	if file.Scripts.Shell != "" {
		cfg.ScriptShell = file.Scripts.Shell
	}
	return nil
}

func (l *Loader) applyEnv(cfg *domain.Config) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if reg := getenv(EnvRegistry); reg != "" {
		if normalized, err := normalizeRegistry(EnvRegistry, reg); err == nil {
			cfg.Registry = normalized
		} else {
			l.Logger.Warn(fmt.Sprintf("ignoring %s: %v", EnvRegistry, err))
		}
	}

	switch dir := getenv(EnvCacheDir); {
	case dir != "":
		cfg.CacheDir = dir
	case cfg.CacheDir == "":
		cfg.CacheDir = defaultCacheDir(getenv)
	}
	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(cfg.Root, cfg.CacheDir)
	}
}

// workspacePatterns merges the nest.yaml patterns with the root package.json workspaces.
func (l *Loader) workspacePatterns(root string, fromFile []string) ([]string, error) {
	patterns := slices.Clone(fromFile)

	data, err := os.ReadFile(filepath.Join(root, domain.ManifestFileName)) //nolint:gosec // root is the project directory
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return patterns, nil
	case err != nil:
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "dir", root)
	}

	m, err := domain.ParseManifest(data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestRead, err.Error()), "dir", root)
	}
	patterns = append(patterns, m.Workspaces...)
	slices.Sort(patterns)
	return slices.Compact(patterns), nil
}

// resolveWorkspaces expands glob patterns into directories that hold a package.json.
func (l *Loader) resolveWorkspaces(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		clean := strings.TrimPrefix(path.Clean(filepath.ToSlash(pattern)), "./")
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "workspace pattern escapes the project root"), "pattern", pattern)
		}
		if !doublestar.ValidatePattern(clean) {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "invalid workspace pattern"), "pattern", pattern)
		}

		matches, err := doublestar.Glob(fsys, path.Join(clean, domain.ManifestFileName))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "workspace glob failed"), "pattern", pattern)
		}

		for _, m := range matches {
			dir := path.Dir(m)
			if dir == "." || isInNodeModules(dir) {
				continue
			}
			seen[dir] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)

	if len(patterns) > 0 && len(dirs) == 0 {
		l.Logger.Warn("workspace patterns matched no package directories")
	}
	return dirs, nil
}

func isInNodeModules(dir string) bool {
	return slices.Contains(strings.Split(dir, "/"), domain.NodeModulesDirName)
}

func readNestfile(configPath string, target *Nestfile) error {
	data, err := os.ReadFile(configPath) //nolint:gosec // path is derived from the project root
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read config file"), "path", configPath)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, err.Error()), "path", configPath)
	}
	return nil
}

func normalizeRegistry(field, raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		err := zerr.Wrap(domain.ErrConfigInvalid, "registry must be an http(s) URL")
		err = zerr.With(err, "field", field)
		return "", zerr.With(err, "value", raw)
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		err := zerr.Wrap(domain.ErrConfigInvalid, "invalid duration")
		err = zerr.With(err, "field", field)
		return 0, zerr.With(err, "value", raw)
	}
	return d, nil
}

func defaultCacheDir(getenv func(string) string) string {
	if xdg := getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "nest")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "nest")
	}
	return filepath.Join(os.TempDir(), "nest-cache")
}
