package domain

import "go.trai.ch/zerr"

var (
	// ErrMalformedDepID is returned when a string cannot be decoded into a DepID.
	ErrMalformedDepID = zerr.New("malformed dependency id")

	// ErrSpecParse is returned when a dependency specifier is structurally invalid.
	ErrSpecParse = zerr.New("invalid dependency specifier")

	// ErrResolution is returned when no version or ref satisfies a specifier.
	ErrResolution = zerr.New("dependency resolution failed")

	// ErrNetwork is returned when a fetch failed after all retries were exhausted.
	ErrNetwork = zerr.New("network request failed")

	// ErrNotFound is returned when a registry or repository reports that a package does not exist.
	ErrNotFound = zerr.New("package not found")

	// ErrIntegrityMismatch is returned when downloaded content does not match the expected integrity.
	ErrIntegrityMismatch = zerr.New("integrity mismatch")

	// ErrExtraction is returned when a tarball could not be unpacked.
	ErrExtraction = zerr.New("tarball extraction failed")

	// ErrLifecycleScript is returned when a lifecycle script exits with a failure.
	ErrLifecycleScript = zerr.New("lifecycle script failed")

	// ErrRollback marks secondary failures that happened while undoing a failed reify.
	ErrRollback = zerr.New("rollback incomplete")

	// ErrLockfileCorrupt is returned when the lockfile cannot be decoded.
	ErrLockfileCorrupt = zerr.New("lockfile is corrupt")

	// ErrLockfileOutdated is returned in frozen mode when the resolved graph differs from the lockfile.
	ErrLockfileOutdated = zerr.New("lockfile is out of date")

	// ErrUnknownNode is returned when an edge references a node that is not part of the graph.
	ErrUnknownNode = zerr.New("unknown node")

	// ErrNodeInUse is returned when removing a node that still has incoming edges.
	ErrNodeInUse = zerr.New("node still has incoming edges")

	// ErrManifestRead is returned when a package.json cannot be read or parsed.
	ErrManifestRead = zerr.New("failed to read manifest")

	// ErrConfigInvalid is returned when the project configuration cannot be parsed.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrUnsafePath is returned when a path would escape its parent directory.
	ErrUnsafePath = zerr.New("path escapes target directory")
)
