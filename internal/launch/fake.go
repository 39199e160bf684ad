package launch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FakeSystem is a test System that records every call instead of making it.
// Exec records the command and returns ExecErr (nil is turned into an error,
// since a real Exec only returns on failure).
type FakeSystem struct {
	mu    sync.Mutex
	calls []string

	SetsidErr   error
	ChdirErr    error
	OpenErr     error
	DupErr      error
	ReadableErr error
	LookPathErr error
	ExecErr     error

	// LogFD is the descriptor OpenLog hands out.
	LogFD int
	// Env is returned by Environ.
	Env []string

	// Set by Exec.
	ExecPath string
	ExecArgv []string
	ExecEnv  []string
}

var _ System = (*FakeSystem)(nil)

// errExecReturned is what Exec returns when ExecErr is unset.
var errExecReturned = errors.New("fake exec returned")

// NewFakeSystem returns a FakeSystem whose calls all succeed.
func NewFakeSystem() *FakeSystem {
	return &FakeSystem{LogFD: 7}
}

func (f *FakeSystem) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded calls, e.g. "open /tmp/x.log 0666".
func (f *FakeSystem) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Called reports whether any recorded call starts with prefix.
func (f *FakeSystem) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *FakeSystem) Setsid() error {
	f.record("setsid")
	return f.SetsidErr
}

func (f *FakeSystem) Chdir(dir string) error {
	f.record("chdir %s", dir)
	return f.ChdirErr
}

func (f *FakeSystem) OpenLog(path string, perm os.FileMode) (int, error) {
	f.record("open %s %04o", path, uint32(perm))
	if f.OpenErr != nil {
		return -1, f.OpenErr
	}
	return f.LogFD, nil
}

func (f *FakeSystem) Dup(oldfd, newfd int) error {
	f.record("dup %d %d", oldfd, newfd)
	return f.DupErr
}

func (f *FakeSystem) Close(fd int) error {
	f.record("close %d", fd)
	return nil
}

func (f *FakeSystem) Readable(path string) error {
	f.record("readable %s", path)
	return f.ReadableErr
}

func (f *FakeSystem) LookPath(file string) (string, error) {
	f.record("lookpath %s", file)
	if f.LookPathErr != nil {
		return "", f.LookPathErr
	}
	return "/usr/bin/" + file, nil
}

func (f *FakeSystem) Environ() []string {
	return append([]string(nil), f.Env...)
}

func (f *FakeSystem) Exec(path string, argv []string, env []string) error {
	f.record("exec %s", path)
	f.mu.Lock()
	f.ExecPath = path
	f.ExecArgv = append([]string(nil), argv...)
	f.ExecEnv = append([]string(nil), env...)
	f.mu.Unlock()
	if f.ExecErr != nil {
		return f.ExecErr
	}
	return errExecReturned
}
