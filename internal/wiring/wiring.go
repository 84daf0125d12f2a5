// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/nest/internal/adapters/config"
	_ "go.trai.ch/nest/internal/adapters/fs"
	_ "go.trai.ch/nest/internal/adapters/git"
	_ "go.trai.ch/nest/internal/adapters/lockfile"
	_ "go.trai.ch/nest/internal/adapters/logger"
	_ "go.trai.ch/nest/internal/adapters/registry"
	_ "go.trai.ch/nest/internal/adapters/semver"
	_ "go.trai.ch/nest/internal/adapters/shell"
	_ "go.trai.ch/nest/internal/adapters/tarball"
	_ "go.trai.ch/nest/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/nest/internal/app"
	_ "go.trai.ch/nest/internal/engine/actual"
	_ "go.trai.ch/nest/internal/engine/ideal"
	_ "go.trai.ch/nest/internal/engine/reify"
)
