package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"sort"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// Journald sends events to the systemd journal as structured entries.
type Journald struct{}

// NewJournald returns a journald reporter, or an error when no journal
// socket is available.
func NewJournald() (*Journald, error) {
	if !journal.Enabled() {
		return nil, errors.New("journald socket not available")
	}
	return &Journald{}, nil
}

func (j *Journald) Report(ev Event) error {
	fields := ev.AllFields()
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	return journal.Send(ev.Text(), journal.PriWarning, fields)
}

func (j *Journald) Close() error { return nil }

// Syslog writes events to the local syslog daemon.
type Syslog struct {
	w *syslog.Writer
}

// NewSyslog connects to the local syslog daemon.
func NewSyslog() (*Syslog, error) {
	w, err := syslog.New(syslog.LOG_WARNING|syslog.LOG_USER, SyslogIdentifier)
	if err != nil {
		return nil, fmt.Errorf("connecting to syslog: %w", err)
	}
	return &Syslog{w: w}, nil
}

func (s *Syslog) Report(ev Event) error {
	return s.w.Warning(ev.Kind + ": " + ev.Text())
}

func (s *Syslog) Close() error { return s.w.Close() }

// Writer formats events as single lines on an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a reporter that writes to w (usually os.Stderr).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Report(ev Event) error {
	fields := ev.AllFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == FieldError {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("detach: ")
	b.WriteString(ev.Text())
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, fields[k])
	}
	b.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.w, b.String())
	return err
}

func (w *Writer) Close() error { return nil }

// Multi fans an event out to every reporter.
type Multi []Reporter

// Report tries every reporter and returns the first error.
func (m Multi) Report(ev Event) error {
	var first error
	for _, r := range m {
		if err := r.Report(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every event.
type Discard struct{}

func (Discard) Report(Event) error { return nil }
func (Discard) Close() error       { return nil }

// Open builds a Multi from channel names (journald, syslog, stderr).
// Channels that aren't available on this host are skipped; Open itself only
// fails on unknown names.
func Open(channels []string, stderr io.Writer) (Reporter, error) {
	var m Multi
	for _, name := range channels {
		switch name {
		case "journald":
			j, err := NewJournald()
			if err != nil {
				slog.Debug("report channel unavailable", "channel", name, "error", err)
				continue
			}
			m = append(m, j)
		case "syslog":
			s, err := NewSyslog()
			if err != nil {
				slog.Debug("report channel unavailable", "channel", name, "error", err)
				continue
			}
			m = append(m, s)
		case "stderr":
			m = append(m, NewWriter(stderr))
		default:
			m.Close()
			return nil, fmt.Errorf("unknown report channel %q", name)
		}
	}
	if len(m) == 0 {
		return Discard{}, nil
	}
	return m, nil
}
