package ariesdb

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Begin starts a new transaction. If one is already open, it is implicitly
// committed first — a surprising but documented behavior this engine keeps
// rather than rejecting a nested Begin outright.
func (e *Engine) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beginLocked()
}

func (e *Engine) beginLocked() error {
	if e.inTransaction {
		if err := e.commitLocked(); err != nil {
			return err
		}
	}

	e.inTransaction = true
	e.currentTxID = e.nextTxID
	e.nextTxID++
	e.txStartRecordCount = e.heap.recordCount

	e.jnl.append(LogEntry{
		TxID:                e.currentTxID,
		RecordID:            noRecordID,
		Type:                TypeBegin,
		RecordCountSnapshot: noCountSnapshot,
	})

	e.log.WithField("tx_id", e.currentTxID).Debug("begin")
	return nil
}

// Commit ends the open transaction, if any. It is a no-op when idle.
// Commit never forces data pages — durability belongs to the journal.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked()
}

func (e *Engine) commitLocked() error {
	if !e.inTransaction {
		return nil
	}

	e.jnl.append(LogEntry{
		TxID:                e.currentTxID,
		RecordID:            noRecordID,
		Type:                TypeCommit,
		RecordCountSnapshot: noCountSnapshot,
	})
	if err := e.jnl.flush(); err != nil {
		return err
	}

	e.buf.clearTransactional()
	e.bib = make(map[int64][]byte)
	e.locks = make(map[int64]struct{})

	e.log.WithField("tx_id", e.currentTxID).Debug("commit")
	e.inTransaction = false
	return nil
}

// Rollback undoes the open transaction, if any. It is a no-op when idle.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollbackLocked()
}

func (e *Engine) rollbackLocked() error {
	if !e.inTransaction {
		return nil
	}

	e.heap.recordCount = e.txStartRecordCount

	for pageID, snapshot := range e.bib {
		e.buf.restore(pageID, snapshot)
	}
	e.bib = make(map[int64][]byte)
	e.locks = make(map[int64]struct{})

	if err := e.buf.purgeTransactional(); err != nil {
		return err
	}

	e.jnl.append(LogEntry{
		TxID:                e.currentTxID,
		RecordID:            noRecordID,
		Type:                TypeRollback,
		RecordCountSnapshot: noCountSnapshot,
	})
	if err := e.jnl.flush(); err != nil {
		return err
	}

	e.log.WithField("tx_id", e.currentTxID).Debug("rollback")
	e.inTransaction = false
	return nil
}

// IsLocked is a pure membership test on the current transaction's lock set.
func (e *Engine) IsLocked(recordID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, locked := e.locks[recordID]
	return locked
}

// ReadRecord implements the read rule: inside an open transaction, a
// record this transaction has itself updated reads back as its
// pre-transaction value; every other read sees the live page.
func (e *Engine) ReadRecord(recordID int64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readLocked(recordID)
}

func (e *Engine) readLocked(recordID int64) ([]byte, error) {
	if recordID < 0 || recordID >= e.heap.recordCount {
		return nil, errors.Wrapf(ErrOutOfBounds, "record id %d out of [0,%d)", recordID, e.heap.recordCount)
	}

	pageID := pageOf(recordID)
	if _, locked := e.locks[recordID]; e.inTransaction && locked {
		if snapshot, ok := e.bib[pageID]; ok {
			off := offsetOf(recordID)
			return decodeRecord(snapshot[off : off+RecordSize]), nil
		}
	}

	data, err := e.buf.fix(pageID)
	if err != nil {
		return nil, err
	}
	defer e.buf.unfix(pageID)

	off := offsetOf(recordID)
	return decodeRecord(data[off : off+RecordSize]), nil
}

// UpdateRecord overwrites an existing record's payload in place.
func (e *Engine) UpdateRecord(recordID int64, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(recordID, payload)
}

func (e *Engine) updateLocked(recordID int64, payload []byte) error {
	if recordID < 0 || recordID >= e.heap.recordCount {
		return errors.Wrapf(ErrOutOfBounds, "record id %d out of [0,%d)", recordID, e.heap.recordCount)
	}
	padded, err := padRecord(payload)
	if err != nil {
		return err
	}
	if _, locked := e.locks[recordID]; locked {
		return errors.Wrapf(ErrRecordLocked, "record %d already locked by current transaction", recordID)
	}

	pageID := pageOf(recordID)
	data, err := e.buf.fix(pageID)
	if err != nil {
		return err
	}
	defer e.buf.unfix(pageID)

	off := offsetOf(recordID)
	before := make([]byte, RecordSize)
	copy(before, data[off:off+RecordSize])

	if e.inTransaction {
		if _, ok := e.bib[pageID]; !ok {
			e.bib[pageID] = e.buf.snapshot(pageID)
		}
		e.locks[recordID] = struct{}{}
	}

	copy(data[off:off+RecordSize], padded)
	if err := e.buf.use(pageID, e.inTransaction); err != nil {
		return err
	}

	if e.inTransaction {
		e.jnl.append(LogEntry{
			TxID:                e.currentTxID,
			RecordID:            recordID,
			Before:              before,
			After:               padded,
			Type:                TypeUpdate,
			RecordCountSnapshot: noCountSnapshot,
		})
	}

	e.log.WithFields(logrus.Fields{"record_id": recordID, "page_id": pageID}).Debug("update")
	return nil
}

// InsertRecord appends a new record at the next monotonic record_id.
func (e *Engine) InsertRecord(payload []byte) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(payload)
}

func (e *Engine) insertLocked(payload []byte) (int64, error) {
	padded, err := padRecord(payload)
	if err != nil {
		return 0, err
	}

	recordID := e.heap.recordCount
	pageID := pageOf(recordID)

	data, err := e.buf.fix(pageID)
	if err != nil {
		return 0, err
	}
	defer e.buf.unfix(pageID)

	off := offsetOf(recordID)
	copy(data[off:off+RecordSize], padded)

	countSnapshot := e.heap.recordCount
	e.heap.recordCount = recordID + 1

	if err := e.buf.use(pageID, e.inTransaction); err != nil {
		return 0, err
	}

	if e.inTransaction {
		e.jnl.append(LogEntry{
			TxID:                e.currentTxID,
			RecordID:            recordID,
			After:               padded,
			Type:                TypeInsert,
			RecordCountSnapshot: countSnapshot,
		})
	}

	e.log.WithFields(logrus.Fields{"record_id": recordID, "page_id": pageID}).Debug("insert")
	return recordID, nil
}

// InsertRecordSync inserts then forces the page, so outside a transaction
// the new record is on disk on return. Inside an open transaction the page
// is transactional and force leaves it unwritten.
func (e *Engine) InsertRecordSync(payload []byte) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	recordID, err := e.insertLocked(payload)
	if err != nil {
		return 0, err
	}
	pageID := pageOf(recordID)
	if err := e.buf.force(pageID, e.heap.recordCount, e.inTransaction); err != nil {
		return 0, err
	}
	return recordID, nil
}
