package ariesdb

import "github.com/pkg/errors"

// Error kinds callers test for with errors.Is; the wrapped message carries
// the offending value.
var (
	// ErrInvalidArgument: negative page id, nil/overlong payload.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfBounds: record id outside [0, record_count).
	ErrOutOfBounds = errors.New("record id out of bounds")

	// ErrCorruptedFile: data file size not a multiple of RecordSize at open,
	// or a malformed journal line.
	ErrCorruptedFile = errors.New("corrupted data file")

	// ErrIoError: any underlying read/write failure.
	ErrIoError = errors.New("io error")

	// ErrIllegalState: unfix of an un-fixed page, use/force on a
	// non-resident page, rollback while a page is pinned.
	ErrIllegalState = errors.New("illegal state")

	// ErrRecordLocked: update of a record already in the current
	// transaction's lock set.
	ErrRecordLocked = errors.New("record already locked by current transaction")

	// ErrWriteLocked: a second process tried to open a data file this
	// engine already holds exclusively.
	ErrWriteLocked = errors.New("data file already opened for writing by another process")
)
