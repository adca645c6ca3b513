package ariesdb

import (
	"strconv"

	"github.com/sirupsen/logrus"
)

// Checkpoint flushes every dirty frame to disk and writes a CHECKPOINT
// entry directly to the journal file, bypassing the in-memory staging
// list because a checkpoint must be immediately durable.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpointLocked()
}

func (e *Engine) checkpointLocked() error {
	for _, pageID := range e.buf.dirtyPageIDs() {
		if err := e.buf.flushDirty(pageID, e.heap.recordCount); err != nil {
			return err
		}
	}

	if err := e.jnl.appendDurable(LogEntry{
		TxID:                checkpointTxID,
		RecordID:            noRecordID,
		Type:                TypeCheckpoint,
		RecordCountSnapshot: noCountSnapshot,
	}); err != nil {
		return err
	}

	e.log.Info("checkpoint complete")
	return nil
}

// Crash simulates a process crash: the buffer pool, before-image store,
// lock table, staged journal entries, and open transaction are dropped;
// only the data file and the journal file carry data across. The next
// transaction id counter is not reset. The record count,
// being a cached derivation of data-file size rather than a true survivor,
// is recomputed from disk exactly as a fresh process restart would.
func (e *Engine) Crash() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.reset()
	e.bib = make(map[int64][]byte)
	e.locks = make(map[int64]struct{})
	e.jnl.tjt = nil
	e.inTransaction = false
	e.currentTxID = 0

	size, err := e.heap.fileSize()
	if err != nil {
		return err
	}
	e.heap.recordCount = size / RecordSize

	e.log.Warn("crash simulated: buffer pool, before-image store, lock table, and staged journal entries dropped")
	return nil
}

// txSet is a simple set of transaction ids, used by the recovery analysis
// pass.
type txSet map[int64]struct{}

func (s txSet) add(id int64)      { s[id] = struct{}{} }
func (s txSet) remove(id int64)   { delete(s, id) }
func (s txSet) has(id int64) bool { _, ok := s[id]; return ok }

// Recover runs the ARIES-flavored analysis/REDO/UNDO algorithm against the
// on-disk journal. It is idempotent: running it twice in a row leaves the
// data file byte-identical to running it once, because both passes apply
// absolute images rather than deltas.
func (e *Engine) Recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recoverLocked()
}

func (e *Engine) recoverLocked() error {
	entries, err := e.jnl.load()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		e.log.Info("recovery: empty journal, nothing to do")
		return nil
	}

	// Re-derive record count from data-file size.
	size, err := e.heap.fileSize()
	if err != nil {
		return err
	}
	e.heap.recordCount = size / RecordSize

	// Find the last CHECKPOINT, scanning from the tail.
	start := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == TypeCheckpoint {
			start = i + 1
			break
		}
	}

	// Analysis pass.
	active := txSet{}
	committed := txSet{}
	for _, entry := range entries[start:] {
		switch entry.Type {
		case TypeBegin:
			active.add(entry.TxID)
		case TypeCommit:
			active.remove(entry.TxID)
			committed.add(entry.TxID)
		case TypeRollback:
			active.remove(entry.TxID)
		}
	}
	e.log.WithFields(logrus.Fields{"start_index": start, "active": len(active), "committed": len(committed)}).Info("recovery: analysis complete")

	// REDO pass, forward from start.
	for _, entry := range entries[start:] {
		if !committed.has(entry.TxID) {
			continue
		}
		if err := e.redoEntry(entry); err != nil {
			return err
		}
	}
	e.log.Info("recovery: redo complete")

	// UNDO pass, backward from end to start.
	for i := len(entries) - 1; i >= start; i-- {
		entry := entries[i]
		if !active.has(entry.TxID) {
			continue
		}
		if err := e.undoEntry(entry); err != nil {
			return err
		}
	}
	e.log.Info("recovery: undo complete")

	// Finalize. The buffer pool is stale versus what recovery just wrote
	// straight through to disk.
	e.buf.reset()
	e.inTransaction = false

	return nil
}

// redoEntry re-applies one committed entry's after-image. Both UPDATE and
// INSERT write straight through to disk; REDO is idempotent because
// after-images are absolute.
func (e *Engine) redoEntry(entry LogEntry) error {
	switch entry.Type {
	case TypeUpdate:
		return e.writeThrough(entry.RecordID, entry.After)
	case TypeInsert:
		if entry.RecordCountSnapshot+1 > e.heap.recordCount {
			e.heap.recordCount = entry.RecordCountSnapshot + 1
		}
		return e.writeThrough(entry.RecordID, entry.After)
	}
	return nil
}

// undoEntry restores one never-committed entry's before-image.
func (e *Engine) undoEntry(entry LogEntry) error {
	switch entry.Type {
	case TypeUpdate:
		return e.writeThrough(entry.RecordID, entry.Before)
	case TypeInsert:
		// record_count was rolled back (or never grew) above; the slot
		// may still hold bytes on disk but sits outside record_count
		// and is therefore invisible. Nothing to write.
	}
	return nil
}

// writeThrough fixes the page holding recordID, overwrites its slot with
// image, and synchronously writes the page to disk, per REDO/UNDO's
// write-directly-through-to-disk requirement.
func (e *Engine) writeThrough(recordID int64, image []byte) error {
	pageID := pageOf(recordID)
	data, err := e.buf.fix(pageID)
	if err != nil {
		return err
	}
	defer e.buf.unfix(pageID)

	off := offsetOf(recordID)
	copy(data[off:off+RecordSize], image)

	return e.heap.writePage(pageID, data, e.heap.recordCount)
}

// PrintJournal returns a human-readable dump of the on-disk journal, one
// line per entry, decoded fields rather than the raw pipe-delimited wire
// format.
func (e *Engine) PrintJournal() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.jnl.load()
	if err != nil {
		return "", err
	}

	var out []byte
	for _, entry := range entries {
		out = append(out, journalLineSummary(entry)...)
		out = append(out, '\n')
	}
	return string(out), nil
}

func journalLineSummary(e LogEntry) string {
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	switch e.Type {
	case TypeCheckpoint:
		return "CHECKPOINT"
	case TypeBegin, TypeCommit, TypeRollback:
		return string(e.Type) + " tx=" + i(e.TxID)
	case TypeUpdate:
		return "UPDATE tx=" + i(e.TxID) + " record=" + i(e.RecordID) +
			" before=" + summarizeImage(e.Before) + " after=" + summarizeImage(e.After)
	case TypeInsert:
		return "INSERT tx=" + i(e.TxID) + " record=" + i(e.RecordID) +
			" after=" + summarizeImage(e.After) + " count_snapshot=" + i(e.RecordCountSnapshot)
	case TypeDelete:
		return "DELETE tx=" + i(e.TxID) + " record=" + i(e.RecordID)
	default:
		return "UNKNOWN"
	}
}

func summarizeImage(img []byte) string {
	if img == nil {
		return "<nil>"
	}
	return string(decodeRecord(img))
}

// ClearJournal truncates the on-disk journal to empty. Exposed only for
// tests; normal operation never rewrites the journal.
func (e *Engine) ClearJournal() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jnl.clear()
}
