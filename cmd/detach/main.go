// detach - Start a script in the background and return immediately
//
// Usage:
//
//	detach [flags]                     Launch the configured script detached
//	detach stage --id ID --config-json JSON [--verbose]
//	                                   (internal) Run as the detached stage
//
// With no flags and no config file, detach runs
// "/bin/bash <dir of detach>/run_tma.sh" in a new session with stdout and
// stderr truncated into $TMPDIR/tma_launch.log, and exits 0 as soon as the
// child exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/mbrock/detach/internal/backend"
	_ "github.com/mbrock/detach/internal/backend/all"
	"github.com/mbrock/detach/internal/config"
	"github.com/mbrock/detach/internal/dirs"
	"github.com/mbrock/detach/internal/launch"
	"github.com/mbrock/detach/internal/report"
)

// options holds the launcher's flag values.
type options struct {
	config          string
	backend         string
	shell           string
	script          string
	args            []string
	workdir         string
	env             []string
	log             string
	logMode         string
	logPerm         string
	execFailureExit int
	report          []string
	verbose         bool
}

// openFunc constructs the backend for a launch; backend.Open outside tests.
type openFunc func(ctx context.Context, cfg backend.Config) (backend.Backend, error)

// How long the parent waits for a backend to create the detached process.
const spawnTimeout = 10 * time.Second

func main() {
	// Handle "stage" before flag parsing: it has its own flags and runs in
	// the detached child.
	if len(os.Args) >= 2 && os.Args[1] == backend.StageCommand {
		cmdStage(os.Args[2:])
		return
	}
	os.Exit(run(os.Args[1:], os.Getenv, os.Stderr, backend.Open))
}

// run is the launcher proper. It returns the process exit status.
func run(args []string, getenv func(string) string, stderr io.Writer, open openFunc) int {
	var opts options
	fs := newFlagSet(&opts, getenv, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return launch.ExitOK
		}
		return fail(stderr, launch.ExitUsage, "%v", err)
	}

	setupLogging(stderr, opts.verbose)

	if rest := fs.Args(); len(rest) > 0 {
		return fail(stderr, launch.ExitUsage, "unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(fs, &opts, getenv)
	if err != nil {
		return fail(stderr, launch.ExitUsage, "%v", err)
	}
	return cmdLaunch(stderr, cfg, open)
}

func newFlagSet(opts *options, getenv func(string) string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("detach", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.config, "config", "c", dirs.ConfigFileEnv(getenv), "YAML config file")
	fs.StringVar(&opts.backend, "backend", "", "Backend: posix, systemd, auto (overrides DETACH_BACKEND)")
	fs.StringVar(&opts.shell, "shell", "", "Command interpreter (default /bin/bash)")
	fs.StringVarP(&opts.script, "script", "s", "", "Script to run (default run_tma.sh next to detach)")
	fs.StringArrayVarP(&opts.args, "arg", "a", nil, "Extra argument for the script (can be repeated)")
	fs.StringVarP(&opts.workdir, "workdir", "C", "", "Working directory for the script")
	fs.StringArrayVarP(&opts.env, "env", "e", nil, "Add environment KEY=VALUE for the script (can be repeated)")
	fs.StringVarP(&opts.log, "log", "l", "", "Log file for stdout/stderr (default $TMPDIR/tma_launch.log)")
	fs.StringVar(&opts.logMode, "log-mode", "", "Log open failure policy: fail-open, fail-closed, off")
	fs.StringVar(&opts.logPerm, "log-perm", "", "Octal permissions for a new log file (default 0666)")
	fs.IntVar(&opts.execFailureExit, "exec-failure-exit", 0, "Exit status of the detached process if the interpreter can't be executed")
	fs.StringArrayVar(&opts.report, "report", nil, "Fallback channel for swallowed failures: journald, syslog, stderr (can be repeated)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug diagnostics to stderr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `detach - Start a script in the background and return immediately

Usage:
  detach [flags]                     Launch the configured script detached

Exit status is 0 once the detached process exists, 1 if it could not be
created, 2 for usage or configuration errors.

Flags:
`)
		fs.PrintDefaults()
	}
	return fs
}

func fail(stderr io.Writer, code int, format string, args ...any) int {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(stderr, "error: ")
	fmt.Fprintf(stderr, format+"\n", args...)
	return code
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig layers defaults, config file, environment and flags.
func loadConfig(fs *flag.FlagSet, opts *options, getenv func(string) string) (config.Config, error) {
	// An explicitly named file must exist; the default location is optional.
	required := fs.Changed("config") || getenv("DETACH_CONFIG") != ""
	cfg, err := config.Load(opts.config, required)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(getenv)

	if fs.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if fs.Changed("shell") {
		cfg.Shell = opts.shell
	}
	if fs.Changed("script") {
		cfg.Script = opts.script
	}
	if fs.Changed("arg") {
		cfg.Args = opts.args
	}
	if fs.Changed("workdir") {
		cfg.WorkingDir = opts.workdir
	}
	if fs.Changed("env") {
		env, err := parseEnv(opts.env)
		if err != nil {
			return cfg, err
		}
		if cfg.Env == nil {
			cfg.Env = make(map[string]string)
		}
		maps.Copy(cfg.Env, env)
	}
	if fs.Changed("log") {
		cfg.LogPath = opts.log
	}
	if fs.Changed("log-mode") {
		cfg.LogMode = config.LogMode(opts.logMode)
	}
	if fs.Changed("log-perm") {
		cfg.LogPerm = opts.logPerm
	}
	if fs.Changed("exec-failure-exit") {
		cfg.ExecFailureExit = opts.execFailureExit
	}
	if fs.Changed("report") {
		cfg.Report = opts.report
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseEnv converts ["KEY=VALUE", ...] to map[string]string
func parseEnv(entries []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, e := range entries {
		idx := strings.Index(e, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", e)
		}
		result[e[:idx]] = e[idx+1:]
	}
	return result, nil
}

func cmdLaunch(stderr io.Writer, cfg config.Config, open openFunc) int {
	ctx, cancel := context.WithTimeout(context.Background(), spawnTimeout)
	defer cancel()

	bk, err := open(ctx, backend.Config{Kind: backend.Kind(cfg.Backend)})
	if err != nil {
		return fail(stderr, launch.ExitSplit, "%v: %v", launch.ErrSplit, err)
	}
	defer bk.Close()

	res, err := launch.Launch(ctx, bk, cfg)
	if err != nil {
		return fail(stderr, launch.ExitSplit, "%v", err)
	}

	slog.Debug("detached", "id", res.ID, "pid", res.Handle.PID, "unit", res.Handle.Unit)
	return launch.ExitOK
}

// cmdStage runs in the detached child. It only returns through os.Exit,
// or not at all once the interpreter has replaced it.
func cmdStage(args []string) {
	req, err := backend.ParseStageArgs(args)
	if err != nil {
		if rep, openErr := report.Open([]string{config.ReportJournald, config.ReportSyslog}, os.Stderr); openErr == nil {
			_ = rep.Report(report.StageInvalid(err))
			rep.Close()
		}
		os.Exit(1)
	}

	// stderr becomes the log once RunStage redirects it, so diagnostics
	// written through slog land there.
	setupLogging(os.Stderr, req.Verbose)

	rep, err := report.Open(req.Config.Report, os.Stderr)
	if err != nil {
		slog.Debug("opening reporter", "error", err)
		rep = report.Discard{}
	}
	code := launch.RunStage(req, launch.UnixSystem(), rep)
	rep.Close()
	os.Exit(code)
}
