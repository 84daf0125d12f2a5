// Package shell runs package lifecycle scripts.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports"
	"go.trai.ch/zerr"
)

// waitDelay bounds how long output is drained after a cancelled script is killed.
const waitDelay = 2 * time.Second

var _ ports.ScriptRunner = (*Runner)(nil)

// Runner implements ports.ScriptRunner by running scripts with "<shell> -c"
// inside a pseudo-terminal, falling back to pipes where no pty is available.
type Runner struct {
	logger ports.Logger
	shell  string
	// Environ returns the inherited environment. Defaults to os.Environ.
	Environ func() []string
}

// NewRunner creates a Runner using the given shell.
func NewRunner(logger ports.Logger, shell string) *Runner {
	if shell == "" {
		shell = "sh"
	}
	return &Runner{logger: logger, shell: shell, Environ: os.Environ}
}

// Run executes the script named by req.Event.
func (r *Runner) Run(ctx context.Context, req ports.ScriptRequest) error {
	var script string
	if req.Manifest != nil {
		script = strings.TrimSpace(req.Manifest.Scripts[req.Event])
	}
	if script == "" {
		if req.IgnoreMissing {
			return nil
		}
		return r.scriptError(zerr.Wrap(domain.ErrLifecycleScript, "missing script"), req, -1)
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", script) //nolint:gosec // package scripts are user code by definition
	cmd.Dir = req.Dir
	cmd.Env = r.environment(req)
	cmd.WaitDelay = waitDelay

	prefix := packageName(req) + " " + req.Event + ": "
	out := &logWriter{logger: r.logger, prefix: prefix}

	err := r.run(cmd, out)
	_ = out.Close()

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zerr.With(zerr.Wrap(ctxErr, "script cancelled"), "event", req.Event)
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return r.scriptError(zerr.Wrap(domain.ErrLifecycleScript, err.Error()), req, exitCode)
}

// run starts cmd attached to a pty when one can be opened.
func (r *Runner) run(cmd *exec.Cmd, out io.Writer) error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		cmd.Stdout = out
		cmd.Stderr = out
		return cmd.Run()
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = tty.Close()
		_ = ptmx.Close()
		return err
	}
	_ = tty.Close()

	ioDone := make(chan struct{})
	go func() {
		defer close(ioDone)
		// Reading the pty master fails with EIO once the child exits.
		_, _ = io.Copy(out, ptmx)
	}()

	err = cmd.Wait()
	<-ioDone
	_ = ptmx.Close()
	return err
}

func (r *Runner) scriptError(err error, req ports.ScriptRequest, exitCode int) error {
	err = zerr.With(err, "package", packageName(req))
	err = zerr.With(err, "event", req.Event)
	return zerr.With(err, "exit_code", exitCode)
}

func packageName(req ports.ScriptRequest) string {
	if req.Manifest != nil && req.Manifest.Name != "" {
		return req.Manifest.Name
	}
	return filepath.Base(req.Dir)
}

// allowListedEnvVars are the inherited environment variables scripts may see.
var allowListedEnvVars = map[string]struct{}{
	"HOME":   {},
	"TERM":   {},
	"USER":   {},
	"PATH":   {},
	"TMPDIR": {},
	"LANG":   {},
	"SHELL":  {},
}

func (r *Runner) environment(req ports.ScriptRequest) []string {
	environ := r.Environ
	if environ == nil {
		environ = os.Environ
	}

	envMap := make(map[string]string)
	for _, entry := range environ() {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}

	pathDirs := slices.Clone(req.BinDirs)
	if p := envMap["PATH"]; p != "" {
		pathDirs = append(pathDirs, p)
	}
	envMap["PATH"] = strings.Join(pathDirs, string(os.PathListSeparator))

	envMap["npm_lifecycle_event"] = req.Event
	envMap["npm_lifecycle_script"] = req.Manifest.Scripts[req.Event]
	envMap["npm_package_name"] = req.Manifest.Name
	envMap["npm_package_version"] = req.Manifest.Version
	if req.Root != "" {
		envMap["INIT_CWD"] = req.Root
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// logWriter forwards complete lines to the logger.
type logWriter struct {
	logger ports.Logger
	prefix string
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	// PTYs may introduce \r.
	msg := strings.TrimSuffix(string(line), "\r")
	w.logger.Info(w.prefix + msg)
}
