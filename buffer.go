package ariesdb

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// frame is an in-memory residence of one page.
type frame struct {
	data     []byte // PageSize bytes
	pinCount int
	flags    frameFlag
}

func newFrame() *frame {
	return &frame{data: make([]byte, PageSize)}
}

func (fr *frame) dirty() bool         { return hasFlag(fr.flags, flagDirty) }
func (fr *frame) transactional() bool { return hasFlag(fr.flags, flagTransactional) }

// bufferPool is the buffer manager: fix/unfix/use/force over a map of
// resident frames. There is no eviction policy — a frame lives until the
// process ends or a rollback purges a purely transactional one.
type bufferPool struct {
	heap   *heapFile
	frames map[int64]*frame
	log    *logrus.Logger
}

func newBufferPool(heap *heapFile, log *logrus.Logger) *bufferPool {
	return &bufferPool{
		heap:   heap,
		frames: make(map[int64]*frame),
		log:    log,
	}
}

// fix pins page_id, reading it through from disk on first touch.
func (bp *bufferPool) fix(pageID int64) ([]byte, error) {
	if pageID < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "page id %d is negative", pageID)
	}

	fr, ok := bp.frames[pageID]
	if !ok {
		data, err := bp.heap.readPage(pageID)
		if err != nil {
			return nil, err
		}
		fr = &frame{data: data}
		bp.frames[pageID] = fr
		bp.log.WithField("page_id", pageID).Debug("fixed new frame, read through from disk")
	}
	fr.pinCount++
	return fr.data, nil
}

// unfix releases one pin on page_id.
func (bp *bufferPool) unfix(pageID int64) error {
	fr, ok := bp.frames[pageID]
	if !ok || fr.pinCount == 0 {
		return errors.Wrapf(ErrIllegalState, "unfix of non-pinned page %d", pageID)
	}
	fr.pinCount--
	return nil
}

// use marks page_id dirty, and transactional if a transaction is open.
func (bp *bufferPool) use(pageID int64, inTransaction bool) error {
	fr, ok := bp.frames[pageID]
	if !ok {
		return errors.Wrapf(ErrIllegalState, "use of non-resident page %d", pageID)
	}
	fr.flags = setFlag(fr.flags, flagDirty)
	if inTransaction {
		fr.flags = setFlag(fr.flags, flagTransactional)
	}
	return nil
}

// force writes page_id to disk under the record-count-bounded rule and
// clears its dirty/transactional flags, unless it is absent, clean, or
// still owned by the open transaction.
func (bp *bufferPool) force(pageID int64, recordCount int64, inTransaction bool) error {
	fr, ok := bp.frames[pageID]
	if !ok || !fr.dirty() || (fr.transactional() && inTransaction) {
		return nil
	}
	if err := bp.heap.writePage(pageID, fr.data, recordCount); err != nil {
		return err
	}
	fr.flags = clearFlag(fr.flags, flagDirty)
	fr.flags = clearFlag(fr.flags, flagTransactional)
	bp.log.WithField("page_id", pageID).Debug("forced dirty frame to disk")
	return nil
}

// snapshot returns a copy of the page_id frame's bytes, or nil if absent.
func (bp *bufferPool) snapshot(pageID int64) []byte {
	fr, ok := bp.frames[pageID]
	if !ok {
		return nil
	}
	cp := make([]byte, len(fr.data))
	copy(cp, fr.data)
	return cp
}

// restore overwrites the page_id frame's bytes with snapshot and clears
// its dirty/transactional flags, used by rollback.
func (bp *bufferPool) restore(pageID int64, snapshot []byte) {
	fr, ok := bp.frames[pageID]
	if !ok {
		return
	}
	copy(fr.data, snapshot)
	fr.flags = clearFlag(fr.flags, flagDirty)
	fr.flags = clearFlag(fr.flags, flagTransactional)
}

// clearTransactional clears the transactional flag on every resident
// frame, used by commit; it never writes to disk.
func (bp *bufferPool) clearTransactional() {
	for _, fr := range bp.frames {
		fr.flags = clearFlag(fr.flags, flagTransactional)
	}
}

// purgeTransactional removes every frame still marked transactional,
// failing loudly if one is still pinned. Used when rolling back frames
// that never had a before-image because they belong to a page created by
// a speculative insert.
func (bp *bufferPool) purgeTransactional() error {
	for pageID, fr := range bp.frames {
		if !fr.transactional() {
			continue
		}
		if fr.pinCount > 0 {
			return errors.Wrapf(ErrIllegalState, "rollback found pinned transactional frame for page %d", pageID)
		}
		delete(bp.frames, pageID)
	}
	return nil
}

// flushDirty writes a dirty frame to disk unconditionally and clears only
// its dirty flag, used by checkpoint. Unlike force, it does not respect
// the transactional/in-transaction exception — a checkpoint durably
// flushes every dirty page it finds, full stop.
func (bp *bufferPool) flushDirty(pageID int64, recordCount int64) error {
	fr, ok := bp.frames[pageID]
	if !ok || !fr.dirty() {
		return nil
	}
	if err := bp.heap.writePage(pageID, fr.data, recordCount); err != nil {
		return err
	}
	fr.flags = clearFlag(fr.flags, flagDirty)
	return nil
}

// dirtyPageIDs returns the page ids of every dirty resident frame, used by
// checkpoint.
func (bp *bufferPool) dirtyPageIDs() []int64 {
	var ids []int64
	for pageID, fr := range bp.frames {
		if fr.dirty() {
			ids = append(ids, pageID)
		}
	}
	return ids
}

// reset drops every resident frame, used by crash and recovery finalize:
// the buffer pool's contents are stale versus disk after either.
func (bp *bufferPool) reset() {
	bp.frames = make(map[int64]*frame)
}
