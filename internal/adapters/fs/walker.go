// Package fs provides file system adapters for reading manifests and walking node_modules.
package fs

import (
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/nest/internal/core/ports"
)

var _ ports.ModulesWalker = (*Walker)(nil)

// Walker lists the package entries of node_modules directories.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// Entries yields the packages installed directly in dir, descending one level
// into @scope directories.
func (w *Walker) Entries(dir string) iter.Seq[ports.ModuleEntry] {
	return func(yield func(ports.ModuleEntry) bool) {
		for _, name := range w.names(dir) {
			if !yield(w.entry(dir, name)) {
				return
			}
		}
	}
}

func (w *Walker) names(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if w.shouldSkip(e) {
			continue
		}
		if !strings.HasPrefix(name, "@") {
			names = append(names, name)
			continue
		}

		scoped, err := os.ReadDir(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for _, s := range scoped {
			if w.shouldSkip(s) {
				continue
			}
			names = append(names, name+"/"+s.Name())
		}
	}
	slices.Sort(names)
	return names
}

// shouldSkip reports whether an entry cannot be a package: dot entries and plain files.
func (w *Walker) shouldSkip(e os.DirEntry) bool {
	if strings.HasPrefix(e.Name(), ".") {
		return true
	}
	return !e.IsDir() && e.Type()&os.ModeSymlink == 0
}

func (w *Walker) entry(dir, name string) ports.ModuleEntry {
	p := filepath.Join(dir, filepath.FromSlash(name))
	entry := ports.ModuleEntry{Name: name, Path: p}

	info, err := os.Lstat(p)
	if err != nil {
		entry.Err = err
		return entry
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return entry
	}

	target, err := os.Readlink(p)
	if err != nil {
		entry.Err = err
		return entry
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p), target)
	}
	entry.Target = filepath.Clean(target)
	return entry
}
