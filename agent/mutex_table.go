package agent

import "sync"

// MutexTable is the Results Mutex Table: a map from transaction id to a
// per-transaction mutex, guarded by one outer access mutex. Per §9's
// redesign note, this is an explicitly constructed service owned by the
// Request Processor rather than a process-wide singleton.
type MutexTable struct {
	access sync.Mutex
	table  map[string]*sync.Mutex
}

// NewMutexTable constructs an empty table.
func NewMutexTable() *MutexTable {
	return &MutexTable{table: make(map[string]*sync.Mutex)}
}

// Add inserts a new per-transaction mutex for id. If one already exists
// this is not an error (spec §4.4: "can happen on retry ... not fatal") —
// Add returns the existing handle unchanged.
func (t *MutexTable) Add(id string) *sync.Mutex {
	t.access.Lock()
	defer t.access.Unlock()
	if m, ok := t.table[id]; ok {
		return m
	}
	m := &sync.Mutex{}
	t.table[id] = m
	return m
}

// Remove deletes the entry for id, if present.
func (t *MutexTable) Remove(id string) {
	t.access.Lock()
	defer t.access.Unlock()
	delete(t.table, id)
}

// Exists reports whether id has a live entry.
func (t *MutexTable) Exists(id string) bool {
	t.access.Lock()
	defer t.access.Unlock()
	_, ok := t.table[id]
	return ok
}

// Get returns the per-transaction mutex for id, or a *NotFoundError if
// absent.
func (t *MutexTable) Get(id string) (*sync.Mutex, error) {
	t.access.Lock()
	defer t.access.Unlock()
	m, ok := t.table[id]
	if !ok {
		return nil, &NotFoundError{Reason: "no mutex table entry for transaction " + id}
	}
	return m, nil
}

// Len reports how many transactions are currently tracked.
func (t *MutexTable) Len() int {
	t.access.Lock()
	defer t.access.Unlock()
	return len(t.table)
}
