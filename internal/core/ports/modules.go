package ports

import "iter"

// ModuleEntry is one package entry of a node_modules directory.
type ModuleEntry struct {
	// Name is the package name, "@scope/name" for scoped packages.
	Name string
	// Path is the absolute path of the entry.
	Path string
	// Target is the cleaned absolute symlink target. Empty for real directories.
	Target string
	// Err is set when the entry is a symlink that could not be read.
	Err error
}

// ModulesWalker lists installed packages.
//
//go:generate mockgen -source=modules.go -destination=mocks/mock_modules.go -package=mocks
type ModulesWalker interface {
	// Entries yields the package entries of dir in name order. Dot entries
	// (.bin, the store) are skipped, and a missing dir yields nothing.
	Entries(dir string) iter.Seq[ModuleEntry]
}
