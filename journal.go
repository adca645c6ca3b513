package ariesdb

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LogEntryType enumerates the journal entry shapes. DELETE is carried for
// wire-format completeness; record deletion is not implemented, so nothing
// in this engine ever produces one.
type LogEntryType string

const (
	TypeBegin      LogEntryType = "BEGIN"
	TypeUpdate     LogEntryType = "UPDATE"
	TypeInsert     LogEntryType = "INSERT"
	TypeDelete     LogEntryType = "DELETE"
	TypeCommit     LogEntryType = "COMMIT"
	TypeRollback   LogEntryType = "ROLLBACK"
	TypeCheckpoint LogEntryType = "CHECKPOINT"
)

// noRecordID is the sentinel used for entries with no associated record.
const noRecordID int64 = -1

// noCountSnapshot is the sentinel RecordCountSnapshot for every entry type
// but INSERT.
const noCountSnapshot int64 = -1

// checkpointTxID is the fixed tx_id carried by CHECKPOINT entries.
const checkpointTxID int64 = -1

// LogEntry is a single journal record. Before/After are nil when absent;
// when present they are exactly RecordSize bytes.
type LogEntry struct {
	TxID                int64
	RecordID            int64
	Before              []byte
	After               []byte
	Type                LogEntryType
	RecordCountSnapshot int64
}

// serialize renders an entry as the fixed pipe-delimited line:
// tx_id|record_id|before|after|TYPE|count_snapshot
func (e LogEntry) serialize() string {
	return fmt.Sprintf("%d|%d|%s|%s|%s|%d",
		e.TxID, e.RecordID, encodeImage(e.Before), encodeImage(e.After), string(e.Type), e.RecordCountSnapshot)
}

func encodeImage(img []byte) string {
	if img == nil {
		return "NULL"
	}
	return base64.StdEncoding.EncodeToString(img)
}

func decodeImage(field string) ([]byte, error) {
	if field == "NULL" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(field)
}

// deserializeLogEntry parses one journal line, the inverse of serialize.
func deserializeLogEntry(line string) (LogEntry, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 6 {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "journal line has %d fields, want 6: %q", len(fields), line)
	}

	txID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "bad tx_id in journal line: %q", line)
	}
	recordID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "bad record_id in journal line: %q", line)
	}
	before, err := decodeImage(fields[2])
	if err != nil {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "bad before image in journal line: %q", line)
	}
	after, err := decodeImage(fields[3])
	if err != nil {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "bad after image in journal line: %q", line)
	}
	countSnapshot, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return LogEntry{}, errors.Wrapf(ErrCorruptedFile, "bad count_snapshot in journal line: %q", line)
	}

	return LogEntry{
		TxID:                txID,
		RecordID:            recordID,
		Before:              before,
		After:               after,
		Type:                LogEntryType(fields[4]),
		RecordCountSnapshot: countSnapshot,
	}, nil
}

// journal owns the in-memory staging list (TJT) and the path to the
// on-disk append-only file (FJT). It never holds the file open.
type journal struct {
	path string
	tjt  []LogEntry
}

func openJournal(dataPath string) (*journal, error) {
	path := dataPath + ".log"
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	f.Close()
	return &journal{path: path}, nil
}

// append adds an entry to the in-memory staging list.
func (j *journal) append(e LogEntry) {
	j.tjt = append(j.tjt, e)
}

// flush appends every staged entry to the on-disk file in order, then
// clears the staging list.
func (j *journal) flush() error {
	if len(j.tjt) == 0 {
		return nil
	}

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range j.tjt {
		if _, err := w.WriteString(e.serialize() + "\n"); err != nil {
			return errors.Wrap(ErrIoError, err.Error())
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}

	j.tjt = nil
	return nil
}

// appendDurable writes a single entry directly to the on-disk file,
// bypassing the TJT, used by checkpoint which must be immediately durable.
func (j *journal) appendDurable(e LogEntry) error {
	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	if _, err := f.WriteString(e.serialize() + "\n"); err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	return f.Sync()
}

// load reads and parses every entry in the on-disk journal file, in order.
func (j *journal) load() ([]LogEntry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	// Journal lines carry base64 record images and can exceed the default
	// 64KiB scan buffer for large records; RecordSize is small here but
	// keep headroom generous rather than fail obscurely.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := deserializeLogEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(ErrIoError, err.Error())
	}
	return entries, nil
}

// clear truncates the on-disk journal file to empty. Exposed only for
// tests; normal operation never rewrites or truncates the journal.
func (j *journal) clear() error {
	j.tjt = nil
	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(ErrIoError, err.Error())
	}
	return f.Close()
}
