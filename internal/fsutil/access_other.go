//go:build !unix

package fsutil

import "os"

// access falls back to an existence check where access(2) is unavailable.
func access(name string, _ uint32) error {
	_, err := os.Stat(name)
	return err
}
