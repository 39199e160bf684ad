// Package report is the fallback channel for launch failures that would
// otherwise go unnoticed: the debug log failing to open, the interpreter
// failing to exec, the target script being absent.
//
// Reporting never changes the outcome of a launch; a Reporter error is at
// most logged.
package report

import (
	"maps"
	"strconv"
)

// Event kinds.
const (
	EventLogOpenFailed = "log-open-failed"
	EventExecFailed    = "exec-failed"
	EventScriptMissing = "script-missing"
	EventChdirFailed   = "chdir-failed"
	EventSetsidFailed  = "setsid-failed"
	EventStageInvalid  = "stage-invalid"
)

// Event field names. These double as journald field names.
const (
	FieldEvent  = "DETACH_EVENT"
	FieldID     = "DETACH_ID"
	FieldScript = "DETACH_SCRIPT"
	FieldShell  = "DETACH_SHELL"
	FieldLog    = "DETACH_LOG"
	FieldError  = "DETACH_ERROR"
	FieldExit   = "DETACH_EXIT_STATUS"
)

// SyslogIdentifier tags entries in journald and syslog.
const SyslogIdentifier = "detach"

// Event is a single reportable failure.
type Event struct {
	Kind    string
	Message string
	Err     error
	Fields  map[string]string
}

// AllFields returns the event's fields plus the kind and error.
func (e Event) AllFields() map[string]string {
	fields := make(map[string]string, len(e.Fields)+2)
	maps.Copy(fields, e.Fields)
	fields[FieldEvent] = e.Kind
	if e.Err != nil {
		fields[FieldError] = e.Err.Error()
	}
	return fields
}

// Text renders the event as one human-readable line.
func (e Event) Text() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Reporter delivers events to some out-of-band channel.
type Reporter interface {
	Report(ev Event) error
	Close() error
}

// LogOpenFailed describes a failure to open the debug log.
func LogOpenFailed(id, path string, err error) Event {
	return Event{
		Kind:    EventLogOpenFailed,
		Message: "cannot open log " + path + ", output is not redirected",
		Err:     err,
		Fields:  map[string]string{FieldID: id, FieldLog: path},
	}
}

// ExecFailed describes a failure to replace the process image.
func ExecFailed(id, shell, script string, exitStatus int, err error) Event {
	return Event{
		Kind:    EventExecFailed,
		Message: "cannot exec " + shell + " " + script,
		Err:     err,
		Fields: map[string]string{
			FieldID:     id,
			FieldShell:  shell,
			FieldScript: script,
			FieldExit:   strconv.Itoa(exitStatus),
		},
	}
}

// ScriptMissing warns that the target script can't be read. The interpreter
// is still started and will fail on its own.
func ScriptMissing(id, script string, err error) Event {
	return Event{
		Kind:    EventScriptMissing,
		Message: "target script " + script + " is not readable",
		Err:     err,
		Fields:  map[string]string{FieldID: id, FieldScript: script},
	}
}

// SetsidFailed describes a failure to start a new session for a reason other
// than already leading one.
func SetsidFailed(id string, err error) Event {
	return Event{
		Kind:    EventSetsidFailed,
		Message: "cannot create new session",
		Err:     err,
		Fields:  map[string]string{FieldID: id},
	}
}

// ChdirFailed describes a failure to enter the configured working directory.
func ChdirFailed(id, dir string, err error) Event {
	return Event{
		Kind:    EventChdirFailed,
		Message: "cannot change directory to " + dir,
		Err:     err,
		Fields:  map[string]string{FieldID: id},
	}
}

// StageInvalid describes a detached stage that received unusable arguments.
func StageInvalid(err error) Event {
	return Event{
		Kind:    EventStageInvalid,
		Message: "invalid stage invocation",
		Err:     err,
	}
}
