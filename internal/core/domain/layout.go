package domain

import (
	"path"
	"path/filepath"
)

const (
	// NodeModulesDirName is the name of the dependency directory of every package.
	NodeModulesDirName = "node_modules"

	// StoreDirName is the name of the content-addressed store inside node_modules.
	StoreDirName = ".nest"

	// BinDirName is the name of the directory holding executable links.
	BinDirName = ".bin"

	// BackupDirName is the name of the directory holding entries moved aside during reify.
	BackupDirName = ".nest-backup"

	// ManifestFileName is the name of a package manifest.
	ManifestFileName = "package.json"

	// LockfileName is the name of the lockfile written at the project root.
	LockfileName = "nest-lock.json"

	// ConfigFileName is the name of the optional project configuration file.
	ConfigFileName = "nest.yaml"

	// DirPerm is the default permission for directories (rwxr-xr-x).
	DirPerm = 0o755

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// ExecPerm is the permission applied to package binaries (rwxr-xr-x).
	ExecPerm = 0o755
)

// StorePrefix is the slash path, relative to the project root, under which store-backed nodes live.
var StorePrefix = path.Join(NodeModulesDirName, StoreDirName) + "/"

// StoreLocation returns the slash path, relative to the project root, where a
// store-backed package with the given id and name is placed.
// It joins node_modules/.nest/<id>/node_modules/<name>.
func StoreLocation(id DepID, name string) string {
	return path.Join(NodeModulesDirName, StoreDirName, id.StoreSegment(), NodeModulesDirName, name)
}

// StoreEntryDir returns the store directory owning a package, node_modules/.nest/<id>.
func StoreEntryDir(id DepID) string {
	return path.Join(NodeModulesDirName, StoreDirName, id.StoreSegment())
}

// DependencyDir returns the slash path of the directory where the dependencies of
// a package located at location are linked. Store-backed packages share the
// node_modules directory that contains them, so their dependencies are siblings.
func DependencyDir(location string) string {
	if IsStoreLocation(location) {
		// node_modules/.nest/<id>/node_modules/<name> or .../node_modules/@scope/name
		dir := path.Dir(location)
		if path.Base(dir) != NodeModulesDirName {
			dir = path.Dir(dir)
		}
		return dir
	}
	return path.Join(location, NodeModulesDirName)
}

// IsStoreLocation reports whether a slash path lies inside the content-addressed store.
func IsStoreLocation(location string) bool {
	return len(location) > len(StorePrefix) && location[:len(StorePrefix)] == StorePrefix
}

// DefaultLockfilePath returns the lockfile path for a project root.
func DefaultLockfilePath(root string) string {
	return filepath.Join(root, LockfileName)
}

// DefaultBackupPath returns the directory used to hold entries moved aside during reify.
func DefaultBackupPath(root string) string {
	return filepath.Join(root, NodeModulesDirName, BackupDirName)
}
