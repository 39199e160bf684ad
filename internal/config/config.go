// Package config describes what detach launches and where its output goes.
//
// Values are layered: built-in defaults, then the YAML config file, then
// DETACH_* environment variables, then command-line flags (applied by the
// caller). The resolved Config is handed to the detached stage as JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mbrock/detach/internal/dirs"
)

// LogMode selects what happens when the debug log can't be opened.
type LogMode string

const (
	// LogFailOpen continues without redirection if the log can't be opened.
	LogFailOpen LogMode = "fail-open"
	// LogFailClosed aborts the detached stage if the log can't be opened.
	LogFailClosed LogMode = "fail-closed"
	// LogOff never redirects stdout/stderr.
	LogOff LogMode = "off"
)

// Fallback report channels.
const (
	ReportJournald = "journald"
	ReportSyslog   = "syslog"
	ReportStderr   = "stderr"
)

const (
	DefaultShell   = "/bin/bash"
	DefaultLogPerm = "0666"
	DefaultBackend = "posix"
)

// Config is the full launch description.
type Config struct {
	Backend         string            `yaml:"backend" json:"backend"`
	Shell           string            `yaml:"shell" json:"shell"`
	Script          string            `yaml:"script" json:"script"`
	Args            []string          `yaml:"args,omitempty" json:"args,omitempty"`
	WorkingDir      string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	LogPath         string            `yaml:"log" json:"log"`
	LogMode         LogMode           `yaml:"log_mode" json:"log_mode"`
	LogPerm         string            `yaml:"log_perm" json:"log_perm"` // octal, e.g. "0666"
	ExecFailureExit int               `yaml:"exec_failure_exit" json:"exec_failure_exit"`
	Report          []string          `yaml:"report,omitempty" json:"report,omitempty"`
}

// Default returns the configuration that reproduces the classic launcher:
// bash runs run_tma.sh, output is truncated into $TMPDIR/tma_launch.log,
// and a failed open or exec does not change the exit status.
func Default() Config {
	return Config{
		Backend: DefaultBackend,
		Shell:   DefaultShell,
		Script:  dirs.ScriptPath(),
		LogPath: dirs.LogPath(),
		LogMode: LogFailOpen,
		LogPerm: DefaultLogPerm,
		Report:  []string{ReportJournald, ReportSyslog},
	}
}

// Load reads a YAML file on top of the defaults. A missing file is not an
// error unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DETACH_* variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DETACH_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := getenv("DETACH_SHELL"); v != "" {
		c.Shell = v
	}
	if v := getenv("DETACH_SCRIPT"); v != "" {
		c.Script = v
	}
	if v := getenv("DETACH_LOG"); v != "" {
		c.LogPath = v
	}
	if v := getenv("DETACH_LOG_MODE"); v != "" {
		c.LogMode = LogMode(v)
	}
}

// Validate reports configuration errors that would make a launch meaningless.
func (c Config) Validate() error {
	if c.Shell == "" {
		return errors.New("shell is empty")
	}
	if c.Script == "" {
		return errors.New("script is empty")
	}
	switch c.Backend {
	case "", "posix", "systemd", "auto":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.LogMode {
	case LogFailOpen, LogFailClosed:
		if c.LogPath == "" {
			return fmt.Errorf("log mode %s needs a log path", c.LogMode)
		}
	case LogOff:
	default:
		return fmt.Errorf("unknown log mode %q", c.LogMode)
	}
	if _, err := c.Perm(); err != nil {
		return err
	}
	for _, r := range c.Report {
		switch r {
		case ReportJournald, ReportSyslog, ReportStderr:
		default:
			return fmt.Errorf("unknown report channel %q", r)
		}
	}
	if c.ExecFailureExit < 0 || c.ExecFailureExit > 255 {
		return fmt.Errorf("exec failure exit status %d out of range", c.ExecFailureExit)
	}
	return nil
}

// Perm parses LogPerm as an octal file mode. Empty means DefaultLogPerm.
func (c Config) Perm() (os.FileMode, error) {
	s := c.LogPerm
	if s == "" {
		s = DefaultLogPerm
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid log permissions %q", c.LogPerm)
	}
	return os.FileMode(n), nil
}

// Command returns the full command line run in the detached process:
// shell, script, then extra args.
func (c Config) Command() []string {
	cmd := make([]string, 0, 2+len(c.Args))
	cmd = append(cmd, c.Shell, c.Script)
	return append(cmd, c.Args...)
}

// Argv is Command with argv[0] set to the shell's base name, the way a
// login-less exec of an interpreter is conventionally spelled.
func (c Config) Argv() []string {
	argv := c.Command()
	argv[0] = filepath.Base(c.Shell)
	return argv
}

// Environ appends the configured Env entries to base in a stable order.
func (c Config) Environ(base []string) []string {
	return append(base, envList(c.Env)...)
}

// Encode serializes the config for the detached stage.
func (c Config) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(data), nil
}

// Decode is the inverse of Encode.
func Decode(s string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
