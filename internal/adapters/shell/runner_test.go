package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/shell"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/nest/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, s)
}

func (l *lines) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.all, "\n")
}

func newRunner(t *testing.T) (*shell.Runner, *lines) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	out := &lines{}
	log.EXPECT().Info(gomock.Any()).Do(out.add).AnyTimes()
	return shell.NewRunner(log, "sh"), out
}

func request(dir, event, script string) ports.ScriptRequest {
	return ports.ScriptRequest{
		Event:    event,
		Dir:      dir,
		Root:     dir,
		Manifest: &domain.Manifest{Name: "pkg", Version: "1.2.3", Scripts: map[string]string{event: script}},
	}
}

func TestRunner_Run(t *testing.T) {
	dir := t.TempDir()
	r, out := newRunner(t)

	err := r.Run(context.Background(), request(dir, "postinstall", "echo line1; echo line2; pwd"))
	require.NoError(t, err)

	logged := out.joined()
	assert.Contains(t, logged, "pkg postinstall: line1")
	assert.Contains(t, logged, "pkg postinstall: line2")
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, logged, resolved)
}

func TestRunner_Environment(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(bin, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "hello-tool"), []byte("#!/bin/sh\necho tool-ran\n"), 0o755)) //nolint:gosec // executable fixture

	r, out := newRunner(t)
	r.Environ = func() []string {
		return []string{"PATH=" + os.Getenv("PATH"), "SECRET_TOKEN=leak"}
	}

	req := request(dir, "install", `echo "event=$npm_lifecycle_event name=$npm_package_name version=$npm_package_version secret=$SECRET_TOKEN"; hello-tool`)
	req.BinDirs = []string{bin}
	require.NoError(t, r.Run(context.Background(), req))

	logged := out.joined()
	assert.Contains(t, logged, "event=install name=pkg version=1.2.3 secret=")
	assert.NotContains(t, logged, "leak")
	assert.Contains(t, logged, "tool-ran")
}

func TestRunner_Failure(t *testing.T) {
	r, _ := newRunner(t)

	err := r.Run(context.Background(), request(t.TempDir(), "preinstall", "exit 3"))
	require.ErrorIs(t, err, domain.ErrLifecycleScript)

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, 3, zErr.Metadata()["exit_code"])
	assert.Equal(t, "preinstall", zErr.Metadata()["event"])
}

func TestRunner_MissingScript(t *testing.T) {
	r, _ := newRunner(t)
	req := ports.ScriptRequest{Event: "install", Dir: t.TempDir(), Manifest: &domain.Manifest{Name: "pkg"}}

	req.IgnoreMissing = true
	require.NoError(t, r.Run(context.Background(), req))

	req.IgnoreMissing = false
	require.ErrorIs(t, r.Run(context.Background(), req), domain.ErrLifecycleScript)
}

func TestRunner_Cancel(t *testing.T) {
	r, _ := newRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, request(t.TempDir(), "postinstall", "sleep 10"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
