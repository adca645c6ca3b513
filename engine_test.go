package ariesdb

import (
	"path/filepath"
	"testing"

	assertion "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDataFileAndJournal(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	e, err := Open(path, &Options{SyncOnCommit: true, Logger: testLogger()})
	require.NoError(err)
	defer e.Close()

	assert.Equal(int64(0), e.GetRecordCount())
	assert.FileExists(path)
	assert.FileExists(path + ".log")
}

func TestOpenNilOptionsFallsBackToDefaults(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "data.bin")

	e, err := Open(path, nil)
	require.NoError(err)
	defer e.Close()
}

func TestOpenSecondTimeOnSameFileFailsWhileLocked(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	path := filepath.Join(t.TempDir(), "data.bin")
	e, err := Open(path, &Options{Logger: testLogger()})
	require.NoError(err)
	defer e.Close()

	_, err = Open(path, &Options{Logger: testLogger()})
	assert.Error(err)
}

func TestCloseReleasesLockForSubsequentOpen(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "data.bin")
	e, err := Open(path, &Options{Logger: testLogger()})
	require.NoError(err)
	require.NoError(e.Close())

	e2, err := Open(path, &Options{Logger: testLogger()})
	require.NoError(err)
	defer e2.Close()
}

func TestGetPageNegativeIsInvalidArgument(t *testing.T) {
	assert := assertion.New(t)
	e := newTestEngine(t)
	_, err := e.GetPage(-1)
	assert.ErrorIs(err, ErrInvalidArgument)
}

func TestPadRecordRejectsOversizePayload(t *testing.T) {
	assert := assertion.New(t)
	_, err := padRecord(make([]byte, RecordSize+1))
	assert.ErrorIs(err, ErrInvalidArgument)
}

func TestPadRecordPadsWithZeros(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)

	slot, err := padRecord([]byte("hi"))
	require.NoError(err)
	require.Len(slot, RecordSize)
	assert.Equal(byte('h'), slot[0])
	assert.Equal(byte('i'), slot[1])
	assert.Equal(byte(0), slot[2])
}

func TestFixUnfixUseForceThroughEngine(t *testing.T) {
	require := require.New(t)
	assert := assertion.New(t)
	e := newTestEngine(t)

	_, err := e.Fix(0)
	require.NoError(err)
	require.NoError(e.Use(0))
	require.NoError(e.Force(0))
	require.NoError(e.Unfix(0))

	size, err := e.heap.fileSize()
	require.NoError(err)
	assert.Equal(int64(0), size, "page 0 has zero live records, so force writes nothing")
}
