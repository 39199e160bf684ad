package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"

	"github.com/mbrock/detach/internal/config"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindSystemd Kind = "systemd"
	KindPosix   Kind = "posix"
	KindAuto    Kind = "auto"
)

// Config configures a backend implementation.
type Config struct {
	Kind Kind

	// SelfCommand is how to re-run this binary as the detached stage
	// (usually {selfExe}). "stage" and its flags are appended.
	SelfCommand []string

	// SelfEnv is appended to the environment of the re-executed stage.
	SelfEnv []string
}

// Request is one launch: an ID for correlation plus what to run.
type Request struct {
	ID     string
	Config config.Config

	// Verbose turns on debug diagnostics in the detached stage.
	Verbose bool
}

// Handle identifies a launched process. The launcher never waits on it.
type Handle struct {
	ID   string
	PID  int    // 0 when the process is owned by a service manager
	Unit string // systemd unit name, if any
}

// Backend splits execution: it starts the detached half of a launch and
// returns as soon as that half exists.
type Backend interface {
	Spawn(ctx context.Context, req Request) (Handle, error)
	Close() error
}

type opener func(ctx context.Context, cfg Config) (Backend, error)

var openers = map[Kind]opener{}

// Register makes a backend implementation available to Open.
// Implementations should call this from init().
func Register(kind Kind, o opener) {
	if kind == "" {
		panic("backend: register with empty kind")
	}
	if o == nil {
		panic("backend: register with nil opener")
	}
	if _, exists := openers[kind]; exists {
		panic("backend: duplicate register for kind " + string(kind))
	}
	openers[kind] = o
}

// Open constructs a backend from cfg. The requested Kind must be registered.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	o, ok := openers[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
	return o(ctx, cfg)
}

// DetectKind returns the appropriate backend based on environment.
// Returns systemd if the systemd user service is available on D-Bus, otherwise posix.
func DetectKind() Kind {
	if hasSystemdUserService() {
		return KindSystemd
	}
	return KindPosix
}

// hasSystemdUserService checks if systemd user session is available.
// It connects to the D-Bus session bus and checks if org.freedesktop.systemd1
// is registered, so hosts running a D-Bus daemon under another init system
// still fall back to posix.
func hasSystemdUserService() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	var owner string
	err = conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus").
		Call("org.freedesktop.DBus.GetNameOwner", 0, "org.freedesktop.systemd1").
		Store(&owner)

	return err == nil && owner != ""
}

func withDefaults(cfg Config) (Config, error) {
	if cfg.Kind == "" {
		cfg.Kind = KindPosix
	}
	if cfg.Kind == KindAuto {
		cfg.Kind = DetectKind()
	}
	if len(cfg.SelfCommand) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return cfg, fmt.Errorf("cannot find own executable: %w", err)
		}
		cfg.SelfCommand = []string{exe}
	}
	if err := ValidateSelfCommand(cfg.SelfCommand); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateSelfCommand returns a user-facing error if SelfCommand is unusable.
func ValidateSelfCommand(self []string) error {
	if len(self) == 0 {
		return errors.New("self command is empty")
	}
	if self[0] == "" || filepath.Base(self[0]) == "." {
		return fmt.Errorf("invalid self command executable %q", self[0])
	}
	return nil
}
