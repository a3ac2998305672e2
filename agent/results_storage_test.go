package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNonBlockingRequest(t *testing.T, spoolDir string) *ActionRequest {
	t.Helper()
	req, err := NewActionRequest(NonBlocking, validChunks())
	require.NoError(t, err)
	req.SetResultsDir(filepath.Join(spoolDir, req.TransactionID()))
	return req
}

func TestResultsStorage_InitialWrite(t *testing.T) {
	spool := t.TempDir()
	req := newNonBlockingRequest(t, spool)
	mutexTable := NewMutexTable()

	storage, err := NewResultsStorage(req, mutexTable)
	require.NoError(t, err)
	assert.True(t, mutexTable.Exists(req.TransactionID()))

	raw, err := os.ReadFile(filepath.Join(storage.Dir(), "metadata"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, false, doc["completed"])
	assert.Equal(t, "ping", doc["module"])
	assert.Equal(t, req.TransactionID(), req.TransactionID())
}

func TestResultsStorage_WriteMetadata_PreservesInitialFields(t *testing.T) {
	spool := t.TempDir()
	req := newNonBlockingRequest(t, spool)
	mutexTable := NewMutexTable()

	storage, err := NewResultsStorage(req, mutexTable)
	require.NoError(t, err)

	require.NoError(t, storage.WriteMetadata(0, "", "12ms"))

	raw, err := os.ReadFile(filepath.Join(storage.Dir(), "metadata"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, true, doc["completed"])
	assert.Equal(t, "ping", doc["module"], "completion rewrite must preserve fields from the initial write")
	assert.Equal(t, float64(0), doc["exitcode"])
}

func TestResultsStorage_MissingResultsDir(t *testing.T) {
	req, err := NewActionRequest(NonBlocking, validChunks())
	require.NoError(t, err)
	_, err = NewResultsStorage(req, NewMutexTable())
	require.Error(t, err)
	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestResultsStorage_RoundTripByteIdentical(t *testing.T) {
	spool := t.TempDir()
	req := newNonBlockingRequest(t, spool)
	storage, err := NewResultsStorage(req, NewMutexTable())
	require.NoError(t, err)
	require.NoError(t, storage.WriteMetadata(0, "", "1s"))

	raw1, err := os.ReadFile(filepath.Join(storage.Dir(), "metadata"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw1, &doc))
	raw2, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)

	var reparsed map[string]any
	require.NoError(t, json.Unmarshal(raw2, &reparsed))
	raw3, err := json.MarshalIndent(reparsed, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, raw2, raw3)
}
