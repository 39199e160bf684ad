package launch

import (
	"errors"
	"log/slog"
	"strings"
	"syscall"

	"github.com/mbrock/detach/internal/backend"
	"github.com/mbrock/detach/internal/config"
	"github.com/mbrock/detach/internal/report"
)

// ExitLogFailed is the stage's exit status when the log can't be opened in
// fail-closed mode.
const ExitLogFailed = 1

// RunStage performs the detached half of a launch and, on success, never
// returns: the process becomes the interpreter. The returned value is the
// exit status to use when it does return.
func RunStage(req backend.Request, sys System, rep report.Reporter) int {
	cfg := req.Config

	// Spawned with Setsid, so this is normally EPERM. Best effort either way.
	if err := sys.Setsid(); err != nil {
		if errors.Is(err, syscall.EPERM) {
			slog.Debug("setsid", "error", err)
		} else {
			notify(rep, report.SetsidFailed(req.ID, err))
		}
	}

	if cfg.WorkingDir != "" {
		if err := sys.Chdir(cfg.WorkingDir); err != nil {
			notify(rep, report.ChdirFailed(req.ID, cfg.WorkingDir, err))
		}
	}

	if cfg.LogMode != config.LogOff {
		if err := redirect(sys, cfg); err != nil {
			notify(rep, report.LogOpenFailed(req.ID, cfg.LogPath, err))
			if cfg.LogMode == config.LogFailClosed {
				return ExitLogFailed
			}
		}
	}

	if err := sys.Readable(cfg.Script); err != nil {
		notify(rep, report.ScriptMissing(req.ID, cfg.Script, err))
	}

	path := cfg.Shell
	if !strings.Contains(path, "/") {
		resolved, err := sys.LookPath(path)
		if err != nil {
			notify(rep, report.ExecFailed(req.ID, cfg.Shell, cfg.Script, cfg.ExecFailureExit, err))
			return cfg.ExecFailureExit
		}
		path = resolved
	}

	err := sys.Exec(path, cfg.Argv(), cfg.Environ(sys.Environ()))

	// Still here: the interpreter never started.
	notify(rep, report.ExecFailed(req.ID, cfg.Shell, cfg.Script, cfg.ExecFailureExit, err))
	return cfg.ExecFailureExit
}

// redirect points stdout and stderr at the log file.
func redirect(sys System, cfg config.Config) error {
	perm, err := cfg.Perm()
	if err != nil {
		return err
	}
	fd, err := sys.OpenLog(cfg.LogPath, perm)
	if err != nil {
		return err
	}
	for _, target := range []int{1, 2} {
		if err := sys.Dup(fd, target); err != nil {
			slog.Debug("dup log descriptor", "fd", fd, "target", target, "error", err)
		}
	}
	if fd != 1 && fd != 2 {
		_ = sys.Close(fd)
	}
	return nil
}

func notify(rep report.Reporter, ev report.Event) {
	if err := rep.Report(ev); err != nil {
		slog.Debug("report failed", "event", ev.Kind, "error", err)
	}
}
