package dirs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigFilePriority(t *testing.T) {
	t.Setenv("DETACH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/alice")

	if got, want := ConfigFile(), "/home/alice/.config/detach/config.yaml"; got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, want := ConfigFile(), "/xdg/detach/config.yaml"; got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}

	t.Setenv("DETACH_CONFIG", "/etc/detach.yaml")
	if got, want := ConfigFile(), "/etc/detach.yaml"; got != want {
		t.Fatalf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestConfigFileNoHome(t *testing.T) {
	t.Setenv("DETACH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")

	if got := ConfigFile(); got != "" {
		t.Fatalf("ConfigFile() = %q, want empty", got)
	}
}

func TestLogPathInTempDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	if got, want := LogPath(), filepath.Join(tmp, DefaultLogName); got != want {
		t.Fatalf("LogPath() = %q, want %q", got, want)
	}
}

func TestScriptPathNextToExecutable(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	got := ScriptPath()
	if filepath.Base(got) != DefaultScriptName {
		t.Fatalf("ScriptPath() = %q, want basename %q", got, DefaultScriptName)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("ScriptPath() = %q, want absolute path next to %q", got, self)
	}
}

func TestConfigFileEnv(t *testing.T) {
	env := map[string]string{"HOME": "/home/bob", "XDG_CONFIG_HOME": "/xdg"}
	getenv := func(k string) string { return env[k] }

	if got, want := ConfigFileEnv(getenv), "/xdg/detach/config.yaml"; got != want {
		t.Fatalf("ConfigFileEnv() = %q, want %q", got, want)
	}
	if got := ConfigFileEnv(func(string) string { return "" }); got != "" {
		t.Fatalf("ConfigFileEnv(empty) = %q, want empty", got)
	}
}
