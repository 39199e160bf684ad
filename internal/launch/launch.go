// Package launch starts a script in the background and returns at once.
//
// A launch has two halves. Launch runs in the invoking process: it asks a
// backend to split off a detached process and reports success as soon as
// that process exists, without waiting for it. RunStage runs in the detached
// process: it leaves the invoking session, points stdout and stderr at the
// debug log, and replaces itself with the interpreter running the script.
//
// Only a failed split is an error for the caller. Everything that goes wrong
// afterwards happens in a process nobody is waiting on; RunStage sends those
// failures to a report.Reporter instead.
package launch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbrock/detach/internal/backend"
	"github.com/mbrock/detach/internal/config"
)

// ErrSplit marks a failure to create the detached process.
var ErrSplit = errors.New("cannot start detached process")

// Exit statuses of the launcher.
const (
	ExitOK    = 0
	ExitSplit = 1
	ExitUsage = 2
)

// Result describes a successful launch.
type Result struct {
	ID     string
	Handle backend.Handle
}

// Launch starts the detached half of cfg through b. On success the detached
// process exists and Launch has already let go of it. Errors wrap ErrSplit.
func Launch(ctx context.Context, b backend.Backend, cfg config.Config) (Result, error) {
	id := GenLaunchID()
	req := backend.Request{
		ID:      id,
		Config:  cfg,
		Verbose: slog.Default().Enabled(ctx, slog.LevelDebug),
	}
	h, err := b.Spawn(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSplit, err)
	}

	slog.Debug("launched",
		"id", id,
		"pid", h.PID,
		"unit", h.Unit,
		"script", cfg.Script,
		"log", cfg.LogPath)
	return Result{ID: id, Handle: h}, nil
}

// GenLaunchID generates a short random launch ID like "KXO284".
func GenLaunchID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"

	b := make([]byte, 6)
	rand.Read(b)

	id := make([]byte, 6)
	for i := 0; i < 3; i++ {
		id[i] = letters[int(b[i])%len(letters)]
	}
	for i := 3; i < 6; i++ {
		id[i] = digits[int(b[i])%len(digits)]
	}
	return string(id)
}
