package ariesdb

import (
	"path/filepath"
	"testing"

	assertion "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleImage(b byte) []byte {
	img := make([]byte, RecordSize)
	for i := range img {
		img[i] = b
	}
	return img
}

func TestLogEntryRoundTrip(t *testing.T) {
	assert := assertion.New(t)
	require := require.New(t)

	cases := []LogEntry{
		{TxID: 1, RecordID: noRecordID, Type: TypeBegin, RecordCountSnapshot: noCountSnapshot},
		{TxID: 1, RecordID: 5, Before: sampleImage('a'), After: sampleImage('b'), Type: TypeUpdate, RecordCountSnapshot: noCountSnapshot},
		{TxID: 1, RecordID: 6, After: sampleImage(0), Type: TypeInsert, RecordCountSnapshot: 6},
		{TxID: 1, RecordID: noRecordID, Type: TypeCommit, RecordCountSnapshot: noCountSnapshot},
		{TxID: 2, RecordID: noRecordID, Type: TypeRollback, RecordCountSnapshot: noCountSnapshot},
		{TxID: checkpointTxID, RecordID: noRecordID, Type: TypeCheckpoint, RecordCountSnapshot: noCountSnapshot},
		{TxID: 3, RecordID: 0, Before: make([]byte, RecordSize), After: make([]byte, RecordSize), Type: TypeUpdate, RecordCountSnapshot: noCountSnapshot},
	}

	for _, want := range cases {
		line := want.serialize()
		got, err := deserializeLogEntry(line)
		require.NoError(err)
		assert.Equal(want.TxID, got.TxID)
		assert.Equal(want.RecordID, got.RecordID)
		assert.Equal(want.Before, got.Before)
		assert.Equal(want.After, got.After)
		assert.Equal(want.Type, got.Type)
		assert.Equal(want.RecordCountSnapshot, got.RecordCountSnapshot)
	}
}

func TestDeserializeRejectsMalformedLine(t *testing.T) {
	assert := assertion.New(t)
	_, err := deserializeLogEntry("1|2|3")
	assert.Error(err)
	assert.ErrorIs(err, ErrCorruptedFile)
}

func TestJournalFlushIsAppendOnlyAndClearsStaging(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	path := filepath.Join(t.TempDir(), "data.bin")
	j, err := openJournal(path)
	require.NoError(err)

	j.append(LogEntry{TxID: 1, RecordID: noRecordID, Type: TypeBegin, RecordCountSnapshot: noCountSnapshot})
	j.append(LogEntry{TxID: 1, RecordID: noRecordID, Type: TypeCommit, RecordCountSnapshot: noCountSnapshot})
	require.NoError(j.flush())
	assert.Empty(j.tjt)

	entries, err := j.load()
	require.NoError(err)
	require.Len(entries, 2)
	assert.Equal(TypeBegin, entries[0].Type)
	assert.Equal(TypeCommit, entries[1].Type)

	j.append(LogEntry{TxID: 2, RecordID: noRecordID, Type: TypeBegin, RecordCountSnapshot: noCountSnapshot})
	require.NoError(j.flush())

	entries, err = j.load()
	require.NoError(err)
	assert.Len(entries, 3)
}

func TestJournalAppendDurableBypassesStaging(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	path := filepath.Join(t.TempDir(), "data.bin")
	j, err := openJournal(path)
	require.NoError(err)

	j.append(LogEntry{TxID: 1, RecordID: noRecordID, Type: TypeBegin, RecordCountSnapshot: noCountSnapshot})
	require.NoError(j.appendDurable(LogEntry{TxID: checkpointTxID, RecordID: noRecordID, Type: TypeCheckpoint, RecordCountSnapshot: noCountSnapshot}))

	// The durable checkpoint reached disk; the staged BEGIN did not.
	entries, err := j.load()
	require.NoError(err)
	require.Len(entries, 1)
	assert.Equal(TypeCheckpoint, entries[0].Type)
	assert.Len(j.tjt, 1)
}

func TestJournalClearTruncates(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	path := filepath.Join(t.TempDir(), "data.bin")
	j, err := openJournal(path)
	require.NoError(err)

	j.append(LogEntry{TxID: 1, RecordID: noRecordID, Type: TypeBegin, RecordCountSnapshot: noCountSnapshot})
	require.NoError(j.flush())

	require.NoError(j.clear())
	entries, err := j.load()
	require.NoError(err)
	assert.Empty(entries)
}
