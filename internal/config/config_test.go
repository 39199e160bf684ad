package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want /bin/bash", cfg.Shell)
	}
	if cfg.LogMode != LogFailOpen {
		t.Errorf("LogMode = %q, want %q", cfg.LogMode, LogFailOpen)
	}
	if filepath.Base(cfg.LogPath) != "tma_launch.log" {
		t.Errorf("LogPath = %q, want tma_launch.log basename", cfg.LogPath)
	}
	if cfg.ExecFailureExit != 0 {
		t.Errorf("ExecFailureExit = %d, want 0", cfg.ExecFailureExit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}

	perm, err := cfg.Perm()
	if err != nil {
		t.Fatalf("Perm: %v", err)
	}
	if perm != 0o666 {
		t.Errorf("Perm = %o, want 666", perm)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `backend: systemd
shell: /bin/sh
script: /opt/app/run.sh
args: ["--fast", "x y"]
workdir: /opt/app
env:
  APP_MODE: prod
log: /var/tmp/app.log
log_mode: fail-closed
log_perm: "0640"
exec_failure_exit: 127
report: [stderr]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Config{
		Backend:         "systemd",
		Shell:           "/bin/sh",
		Script:          "/opt/app/run.sh",
		Args:            []string{"--fast", "x y"},
		WorkingDir:      "/opt/app",
		Env:             map[string]string{"APP_MODE": "prod"},
		LogPath:         "/var/tmp/app.log",
		LogMode:         LogFailClosed,
		LogPerm:         "0640",
		ExecFailureExit: 127,
		Report:          []string{ReportStderr},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Load = %+v\nwant %+v", cfg, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("script: /srv/run.sh\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Script != "/srv/run.sh" {
		t.Errorf("Script = %q", cfg.Script)
	}
	if cfg.Shell != DefaultShell || cfg.LogMode != LogFailOpen {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load(optional) = %v", err)
	}
	if cfg.Shell != DefaultShell {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	if _, err := Load(path, true); err == nil {
		t.Fatal("Load(required) on missing file should fail")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("args: {not: [a list\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DETACH_BACKEND":  "auto",
		"DETACH_SHELL":    "/bin/zsh",
		"DETACH_SCRIPT":   "/tmp/s.sh",
		"DETACH_LOG":      "/tmp/l.log",
		"DETACH_LOG_MODE": "off",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Backend != "auto" || cfg.Shell != "/bin/zsh" || cfg.Script != "/tmp/s.sh" ||
		cfg.LogPath != "/tmp/l.log" || cfg.LogMode != LogOff {
		t.Fatalf("ApplyEnv result = %+v", cfg)
	}

	// Unset variables leave fields alone.
	cfg2 := Default()
	cfg2.ApplyEnv(func(string) string { return "" })
	if !reflect.DeepEqual(cfg2, Default()) {
		t.Fatalf("ApplyEnv with empty env changed config: %+v", cfg2)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty shell", func(c *Config) { c.Shell = "" }, "shell"},
		{"empty script", func(c *Config) { c.Script = "" }, "script"},
		{"unknown backend", func(c *Config) { c.Backend = "bogus" }, `unknown backend "bogus"`},
		{"auto backend", func(c *Config) { c.Backend = "auto" }, ""},
		{"systemd backend", func(c *Config) { c.Backend = "systemd" }, ""},
		{"bad log mode", func(c *Config) { c.LogMode = "sometimes" }, "log mode"},
		{"no log path", func(c *Config) { c.LogPath = "" }, "log path"},
		{"no log path but off", func(c *Config) { c.LogPath = ""; c.LogMode = LogOff }, ""},
		{"bad perm", func(c *Config) { c.LogPerm = "rw-rw-rw-" }, "permissions"},
		{"perm too wide", func(c *Config) { c.LogPerm = "7777" }, "permissions"},
		{"bad report", func(c *Config) { c.Report = []string{"pager"} }, "report channel"},
		{"exit out of range", func(c *Config) { c.ExecFailureExit = 300 }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCommandAndArgv(t *testing.T) {
	cfg := Config{Shell: "/bin/bash", Script: "/x/TMA Project/run_tma.sh", Args: []string{"a"}}

	if got, want := cfg.Command(), []string{"/bin/bash", "/x/TMA Project/run_tma.sh", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Command() = %q, want %q", got, want)
	}
	if got, want := cfg.Argv(), []string{"bash", "/x/TMA Project/run_tma.sh", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Argv() = %q, want %q", got, want)
	}
	// Argv must not alias Command's result.
	if cfg.Command()[0] != "/bin/bash" {
		t.Error("Argv mutated Command")
	}
}

func TestEnviron(t *testing.T) {
	cfg := Config{Env: map[string]string{"B": "2", "A": "1"}}
	got := cfg.Environ([]string{"PATH=/bin"})
	want := []string{"PATH=/bin", "A=1", "B=2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Environ = %q, want %q", got, want)
	}
}

func TestEncodeDecode(t *testing.T) {
	cfg := Default()
	cfg.Args = []string{"--flag", "with space"}
	cfg.Env = map[string]string{"K": "V"}

	s, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("Decode(Encode(cfg)) = %+v, want %+v", got, cfg)
	}

	if _, err := Decode("{not json"); err == nil {
		t.Fatal("Decode of garbage should fail")
	}
}
