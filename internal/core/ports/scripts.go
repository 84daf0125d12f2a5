package ports

import (
	"context"

	"go.trai.ch/nest/internal/core/domain"
)

// ScriptRequest describes a lifecycle script invocation.
type ScriptRequest struct {
	// Event is the script name, e.g. "postinstall".
	Event string
	// Dir is the absolute package directory the script runs in.
	Dir string
	// Root is the absolute project root.
	Root     string
	Manifest *domain.Manifest
	// BinDirs are searched for executables before the inherited PATH.
	BinDirs []string
	// IgnoreMissing turns an absent script into a no-op instead of an error.
	IgnoreMissing bool
}

// ScriptRunner runs package lifecycle scripts.
//
//go:generate mockgen -source=scripts.go -destination=mocks/mock_scripts.go -package=mocks
type ScriptRunner interface {
	// Run executes the script and fails with domain.ErrLifecycleScript on a nonzero exit.
	// Cancelling ctx kills the child process.
	Run(ctx context.Context, req ScriptRequest) error
}
