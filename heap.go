package ariesdb

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Constants exposed as part of the on-disk contract. Changing any of these
// produces a different, incompatible engine.
const (
	PageSize       = 4096
	RecordSize     = 100
	RecordsPerPage = PageSize / RecordSize // 40
)

// heapFile answers the purely derived queries of where a record lives, and
// how many records are live. It owns no long-held file descriptor — every
// read/write opens the data file fresh.
type heapFile struct {
	path        string
	recordCount int64
}

// openHeapFile validates that the data file's byte length is a multiple of
// RecordSize and derives the persisted record count from it. A missing
// file is created empty.
func openHeapFile(path string) (*heapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(ErrIoError, err.Error())
	}

	size := info.Size()
	if size%RecordSize != 0 {
		return nil, errors.Wrapf(ErrCorruptedFile, "data file size %d is not a multiple of %d", size, RecordSize)
	}

	return &heapFile{path: path, recordCount: size / RecordSize}, nil
}

// pageOf returns the page id that holds recordID.
func pageOf(recordID int64) int64 {
	return recordID / RecordsPerPage
}

// offsetOf returns the intra-page byte offset of recordID.
func offsetOf(recordID int64) int64 {
	return (recordID % RecordsPerPage) * RecordSize
}

// pageDiskOffset returns the byte offset of pageID's first record slot in
// the data file, which is a plain concatenation of RecordSize slots.
func pageDiskOffset(pageID int64) int64 {
	return pageID * RecordsPerPage * RecordSize
}

// readPage reads page id pageID's record slots from disk into a PageSize
// buffer; the unused tail past RecordsPerPage slots stays zero. Bytes
// beyond the end of the file, including a wholly absent file, come back
// zero-filled.
func (h *heapFile) readPage(pageID int64) ([]byte, error) {
	buf := make([]byte, PageSize)

	f, err := os.OpenFile(h.path, os.O_RDONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return buf, nil
		}
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	off := pageDiskOffset(pageID)
	if _, err := f.ReadAt(buf[:RecordsPerPage*RecordSize], off); err != nil {
		// A short or wholly-absent region reads as io.EOF; the untouched
		// tail of buf is already zero, which is exactly the zero-padded
		// semantics a read past the live file should have.
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return buf, nil
		}
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	return buf, nil
}

// writePage writes page id pageID to disk under the record-count-bounded
// rule: only the bytes covering live records on that page are written,
// never a full PageSize, and nothing at all for a page entirely beyond
// recordCount.
func (h *heapFile) writePage(pageID int64, data []byte, recordCount int64) error {
	firstRecord := pageID * RecordsPerPage
	if firstRecord >= recordCount {
		return nil
	}

	liveOnPage := recordCount - firstRecord
	if liveOnPage > RecordsPerPage {
		liveOnPage = RecordsPerPage
	}
	boundedLen := liveOnPage * RecordSize

	f, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	off := pageDiskOffset(pageID)
	if _, err := f.WriteAt(data[:boundedLen], off); err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	return nil
}

// fileSize returns the current on-disk size of the data file.
func (h *heapFile) fileSize() (int64, error) {
	info, err := os.Stat(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(ErrIoError, err.Error())
	}
	return info.Size(), nil
}
