// Package systemd implements a backend that hands the script to the user's
// systemd instance as a transient service. systemd does the detaching; the
// launcher only waits for the start job to be queued and finished.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/mbrock/detach/internal/backend"
	"github.com/mbrock/detach/internal/config"
)

func init() {
	backend.Register(backend.KindSystemd, func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		return ConnectUser(ctx)
	})
}

// Starter is the part of a go-systemd connection the backend needs.
type Starter interface {
	StartTransientUnitContext(ctx context.Context, name string, mode string, properties []dbus.Property, ch chan<- string) (int, error)
	Close()
}

// Backend launches scripts as transient systemd user units.
type Backend struct {
	conn Starter

	// writable reports whether a log file can be created in dir.
	writable func(dir string) bool
}

var _ backend.Backend = (*Backend)(nil)

// ConnectUser connects to the user's systemd instance.
func ConnectUser(ctx context.Context) (*Backend, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to user systemd: %w", err)
	}
	return New(conn), nil
}

// New wraps an existing connection.
func New(conn Starter) *Backend {
	return &Backend{conn: conn, writable: dirWritable}
}

// UnitName returns the unit name used for a launch ID.
func UnitName(id string) string {
	return "detach-" + strings.ToLower(id) + ".service"
}

// Spawn starts the script as a transient service and returns once systemd
// has run the start job.
func (b *Backend) Spawn(ctx context.Context, req backend.Request) (backend.Handle, error) {
	unit := UnitName(req.ID)
	props := b.properties(req)

	resultChan := make(chan string, 1)
	_, err := b.conn.StartTransientUnitContext(ctx, unit, "replace", props, resultChan)
	if err != nil {
		return backend.Handle{}, fmt.Errorf("starting transient unit: %w", err)
	}

	select {
	case result := <-resultChan:
		// "failed" also covers a script that started and exited non-zero
		// quickly; the launcher does not care how the script ends.
		if result != "done" && result != "failed" {
			return backend.Handle{}, fmt.Errorf("start job failed: %s", result)
		}
		slog.Debug("transient unit started", "unit", unit, "result", result)
	case <-ctx.Done():
		return backend.Handle{}, ctx.Err()
	}

	return backend.Handle{ID: req.ID, Unit: unit}, nil
}

func (b *Backend) properties(req backend.Request) []dbus.Property {
	cfg := req.Config
	props := []dbus.Property{
		dbus.PropExecStart(cfg.Command(), false),
		dbus.PropDescription("detach " + filepath.Base(cfg.Script)),
		dbus.PropType("exec"),
		{
			Name:  "CollectMode",
			Value: godbus.MakeVariant("inactive-or-failed"),
		},
	}

	if cfg.WorkingDir != "" {
		props = append(props, dbus.Property{
			Name:  "WorkingDirectory",
			Value: godbus.MakeVariant(cfg.WorkingDir),
		})
	}

	if env := cfg.Environ(nil); len(env) > 0 {
		props = append(props, dbus.Property{
			Name:  "Environment",
			Value: godbus.MakeVariant(env),
		})
	}

	output := b.outputTarget(cfg)
	props = append(props,
		dbus.Property{Name: "StandardOutput", Value: godbus.MakeVariant(output)},
		dbus.Property{Name: "StandardError", Value: godbus.MakeVariant(output)},
	)
	return props
}

// outputTarget picks StandardOutput/StandardError. systemd opens the log
// itself and fails the unit if it can't, so in fail-open mode an unwritable
// log directory falls back to the journal instead.
func (b *Backend) outputTarget(cfg config.Config) string {
	switch cfg.LogMode {
	case config.LogOff:
		return "null"
	case config.LogFailOpen:
		if !b.writable(filepath.Dir(cfg.LogPath)) {
			slog.Debug("log directory not writable, using journal", "log", cfg.LogPath)
			return "journal"
		}
	}
	return "truncate:" + cfg.LogPath
}

func dirWritable(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}

func (b *Backend) Close() error {
	b.conn.Close()
	return nil
}
