// Package posix implements the default backend: the launcher re-executes
// itself as the detached stage in a new session, then forgets about it.
package posix

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"syscall"

	"github.com/mbrock/detach/internal/backend"
)

func init() {
	backend.Register(backend.KindPosix, func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		return New(cfg.SelfCommand, cfg.SelfEnv), nil
	})
}

// Backend spawns the stage as a plain OS process.
type Backend struct {
	self []string
	env  []string
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend that re-runs self (plus "stage ...") with env
// appended to the inherited environment.
func New(self []string, env []string) *Backend {
	return &Backend{self: self, env: env}
}

// Spawn starts the stage and returns without waiting for it.
// Stdio is /dev/null; the stage opens its own log.
func (b *Backend) Spawn(ctx context.Context, req backend.Request) (backend.Handle, error) {
	if err := ctx.Err(); err != nil {
		return backend.Handle{}, err
	}
	if err := backend.ValidateSelfCommand(b.self); err != nil {
		return backend.Handle{}, err
	}

	stage, err := backend.StageArgs(req)
	if err != nil {
		return backend.Handle{}, err
	}
	args := append(slices.Clone(b.self[1:]), stage...)

	// Not CommandContext: the child must outlive ctx and this process.
	cmd := exec.Command(b.self[0], args...)
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return backend.Handle{}, fmt.Errorf("starting stage: %w", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		slog.Debug("releasing stage process", "pid", pid, "error", err)
	}
	slog.Debug("stage spawned", "id", req.ID, "pid", pid)

	return backend.Handle{ID: req.ID, PID: pid}, nil
}

func (b *Backend) Close() error { return nil }
