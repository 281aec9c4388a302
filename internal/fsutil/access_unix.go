//go:build unix

package fsutil

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

func access(name string, mode uint32) error {
	if err := unix.Access(name, mode); err != nil {
		return &fs.PathError{Op: "access", Path: name, Err: err}
	}
	return nil
}
