//go:build linux

package launch

import "golang.org/x/sys/unix"

// dup3 with no flags: the copy is not close-on-exec, so it survives Exec.
func dup(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
