package agent

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ResultsStorage is the per-transaction spool directory holding metadata,
// and (for external modules) sibling stdout/stderr/exitcode files.
// Grounded on original_source/lib/src/request_processor.cc's
// ResultsStorage constructor/initialize/writeMetadata.
type ResultsStorage struct {
	dir           string
	transactionID string
}

// NewResultsStorage creates <spool>/<transaction_id>/ if absent and writes
// the initial metadata document atomically. It registers the transaction
// in mutexTable; per spec §4.4, an already-present entry is not an error.
func NewResultsStorage(req *ActionRequest, mutexTable *MutexTable) (*ResultsStorage, error) {
	dir := req.ResultsDir()
	if dir == "" {
		return nil, &StorageError{Reason: "results directory not set on request"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Reason: "creating results directory: " + err.Error()}
	}

	s := &ResultsStorage{dir: dir, transactionID: req.TransactionID()}

	input := req.ParamsText()
	if input == "" {
		input = "none"
	}
	doc := map[string]any{
		"module":    req.Module(),
		"action":    req.Action(),
		"completed": false,
		"duration":  "0 s",
		"exitcode":  nil,
		"exec_error": "",
		"input":     input,
	}
	if err := s.writeAtomic(doc); err != nil {
		return nil, err
	}

	mutexTable.Add(req.TransactionID())

	return s, nil
}

// WriteMetadata rewrites the metadata file atomically with completed=true
// and the given fields, preserving whatever else the initial write
// recorded (module, action, input).
func (s *ResultsStorage) WriteMetadata(exitCode int, execError, duration string) error {
	doc := map[string]any{}
	if raw, err := os.ReadFile(filepath.Join(s.dir, "metadata")); err == nil {
		_ = json.Unmarshal(raw, &doc)
	}
	doc["completed"] = true
	doc["duration"] = duration
	doc["exitcode"] = exitCode
	doc["exec_error"] = execError
	return s.writeAtomic(doc)
}

// Dir returns the results directory path.
func (s *ResultsStorage) Dir() string { return s.dir }

func (s *ResultsStorage) writeAtomic(doc map[string]any) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StorageError{Reason: "marshaling metadata: " + err.Error()}
	}
	tmpName := filepath.Join(s.dir, "metadata."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpName, raw, 0o644); err != nil {
		return &StorageError{Reason: "writing metadata temp file: " + err.Error()}
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, "metadata")); err != nil {
		os.Remove(tmpName)
		return &StorageError{Reason: "renaming metadata temp file: " + err.Error()}
	}
	return nil
}
