package ariesdb

import (
	"syscall"

	"github.com/pkg/errors"
)

// flockExclusive acquires a non-blocking exclusive advisory lock on the
// data file, so a second process opening the same data file fails
// immediately instead of racing this engine's in-memory buffer pool.
func flockExclusive(f fdHolder) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	}
	if errno, ok := err.(syscall.Errno); ok && (errno == syscall.EWOULDBLOCK || errno == syscall.EAGAIN) {
		return ErrWriteLocked
	}
	return errors.Wrap(err, "flock failed")
}

// funlock releases the advisory lock taken by flockExclusive.
func funlock(f fdHolder) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// fdHolder is satisfied by *os.File; kept as an interface so tests can
// exercise flock logic without a real descriptor where possible.
type fdHolder interface {
	Fd() uintptr
}
