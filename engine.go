// Package ariesdb is a small single-file storage engine for fixed-size
// records. It demonstrates, end to end, the ACID machinery of a classical
// disk-oriented database: a paged heap file, a pinned buffer pool with
// dirty-page tracking, record-level locking with before-image isolation
// for in-flight readers, a write-ahead journal, and an ARIES-flavored
// UNDO/REDO recovery algorithm with checkpointing.
package ariesdb

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures an Engine.
type Options struct {
	// SyncOnCommit is accepted but not read: commit and rollback always
	// fsync the journal file as part of their flush, whatever its value.
	SyncOnCommit bool

	// Logger receives structured diagnostics for checkpoint, crash, and
	// recovery. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// DefaultOptions is the Options value used when Open is called with nil.
var DefaultOptions = &Options{SyncOnCommit: true}

// Engine is a single-threaded, single-mutex engine: every public operation
// holds mu for its entire duration, and at most one transaction is ever
// open at a time.
type Engine struct {
	mu sync.Mutex

	dataPath string
	lockFile *os.File
	log      *logrus.Logger

	heap *heapFile
	buf  *bufferPool
	jnl  *journal

	inTransaction      bool
	currentTxID        int64
	nextTxID           int64
	txStartRecordCount int64

	bib   map[int64][]byte
	locks map[int64]struct{}
}

// Open opens (creating if necessary) the data file at path and its
// journal at path+".log".
func Open(path string, options *Options) (*Engine, error) {
	if options == nil {
		options = DefaultOptions
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	lockFile, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	if err := flockExclusive(lockFile); err != nil {
		lockFile.Close()
		return nil, err
	}

	heap, err := openHeapFile(path)
	if err != nil {
		funlock(lockFile)
		lockFile.Close()
		return nil, err
	}

	jnl, err := openJournal(path)
	if err != nil {
		funlock(lockFile)
		lockFile.Close()
		return nil, err
	}

	e := &Engine{
		dataPath: path,
		lockFile: lockFile,
		log:      logger,
		heap:     heap,
		buf:      newBufferPool(heap, logger),
		jnl:      jnl,
		nextTxID: 1,
		bib:      make(map[int64][]byte),
		locks:    make(map[int64]struct{}),
	}
	e.log.WithFields(logrus.Fields{"path": path, "record_count": heap.recordCount}).Info("engine opened")
	return e, nil
}

// Close releases the exclusive lock on the data file. It does not flush
// or checkpoint; callers wanting a durable shutdown call Checkpoint first.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lockFile == nil {
		return nil
	}
	if err := funlock(e.lockFile); err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	err := e.lockFile.Close()
	e.lockFile = nil
	if err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	return nil
}

// GetRecordCount returns the in-memory record_count, which may exceed the
// persisted count when dirty pages have not yet been flushed.
func (e *Engine) GetRecordCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heap.recordCount
}

// Fix is the public wrapper around the buffer manager's fix.
func (e *Engine) Fix(pageID int64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.fix(pageID)
}

// Unfix is the public wrapper around the buffer manager's unfix.
func (e *Engine) Unfix(pageID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.unfix(pageID)
}

// Use is the public wrapper around the buffer manager's use.
func (e *Engine) Use(pageID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.use(pageID, e.inTransaction)
}

// Force is the public wrapper around the buffer manager's force.
func (e *Engine) Force(pageID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.force(pageID, e.heap.recordCount, e.inTransaction)
}

// GetPage returns the decoded records resident on page_number, possibly
// empty.
func (e *Engine) GetPage(pageNumber int64) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pageNumber < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "page number %d is negative", pageNumber)
	}

	data, err := e.buf.fix(pageNumber)
	if err != nil {
		return nil, err
	}
	defer e.buf.unfix(pageNumber)

	firstRecord := pageNumber * RecordsPerPage
	var records [][]byte
	for i := int64(0); i < RecordsPerPage; i++ {
		recordID := firstRecord + i
		if recordID >= e.heap.recordCount {
			break
		}
		off := offsetOf(recordID)
		records = append(records, decodeRecord(data[off:off+RecordSize]))
	}
	return records, nil
}

// decodeRecord strips the zero-byte padding suffix of a RecordSize slot.
func decodeRecord(slot []byte) []byte {
	end := len(slot)
	for end > 0 && slot[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, slot[:end])
	return out
}

// padRecord pads payload to exactly RecordSize bytes with trailing zeros.
// A nil payload, or one longer than RecordSize, is an InvalidArgument.
func padRecord(payload []byte) ([]byte, error) {
	if payload == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "payload is nil")
	}
	if len(payload) > RecordSize {
		return nil, errors.Wrapf(ErrInvalidArgument, "payload of %d bytes exceeds RecordSize %d", len(payload), RecordSize)
	}
	slot := make([]byte, RecordSize)
	copy(slot, payload)
	return slot, nil
}
