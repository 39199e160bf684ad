package launch

import (
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// System is the set of process-level calls the detached stage makes.
// UnixSystem is the real one; FakeSystem records calls for tests.
type System interface {
	Setsid() error
	Chdir(dir string) error
	// OpenLog opens path read/write, creating and truncating it.
	OpenLog(path string, perm os.FileMode) (fd int, err error)
	// Dup makes newfd refer to oldfd's open file.
	Dup(oldfd, newfd int) error
	Close(fd int) error
	// Readable reports whether path can be opened for reading.
	Readable(path string) error
	LookPath(file string) (string, error)
	Environ() []string
	// Exec replaces the process image. It only returns on failure.
	Exec(path string, argv []string, env []string) error
}

type unixSystem struct{}

// UnixSystem returns the System backed by real syscalls.
func UnixSystem() System {
	return unixSystem{}
}

func (unixSystem) Setsid() error {
	_, err := unix.Setsid()
	return err
}

func (unixSystem) Chdir(dir string) error {
	return unix.Chdir(dir)
}

// No O_CLOEXEC: if the log lands on fd 1 or 2 it is kept as is and must
// survive Exec. Any other descriptor is closed after the dups.
func (unixSystem) OpenLog(path string, perm os.FileMode) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, uint32(perm.Perm()))
}

func (unixSystem) Dup(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return dup(oldfd, newfd)
}

func (unixSystem) Close(fd int) error {
	return unix.Close(fd)
}

func (unixSystem) Readable(path string) error {
	return unix.Access(path, unix.R_OK)
}

func (unixSystem) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (unixSystem) Environ() []string {
	return os.Environ()
}

func (unixSystem) Exec(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}
