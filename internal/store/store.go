// Package store holds the authoritative expense sequence of the active owner
// and keeps it mirrored to a storage.Medium.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"expenses/internal/core"
	"expenses/internal/identity"
	"expenses/internal/storage"
)

// ErrNotLoaded is returned by mutations issued before an owner was loaded.
var ErrNotLoaded = errors.New("store: no owner loaded")

// Operation names passed to listeners.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Snapshot is one committed state of the store together with the views
// derived from it.
type Snapshot struct {
	Owner      identity.OwnerKey
	Records    []core.Expense
	Editing    *core.Expense
	ByCategory []core.CategoryAmount
	Shares     []core.CategoryShare
	ByMonth    []core.MonthTotal
	Summary    core.Summary
	// HasData is false when there are no records; Summary is then zero.
	HasData bool
}

// Listener is notified after every committed mutation, in commit order.
// Listeners run before the next mutation may start and must not block.
type Listener func(ctx context.Context, op string, id string, snap Snapshot)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the UUID generator, mainly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is safe for concurrent use. Mutations are serialized; readers always
// observe a whole committed sequence.
type Store struct {
	medium storage.Medium
	newID  func() string

	// writeMu serializes mutations from mirror write through listener dispatch.
	writeMu sync.Mutex

	mu        sync.RWMutex
	loaded    bool
	owner     identity.OwnerKey
	records   []core.Expense
	editing   *core.Expense
	listeners []Listener
}

func New(medium storage.Medium, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a listener for committed mutations.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Load reads the sequence persisted for owner. Loading the owner that is
// already active does nothing; loading another owner replaces the sequence
// and clears the edit selection. On failure the store is left unloaded.
func (s *Store) Load(ctx context.Context, owner identity.OwnerKey) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	same := s.loaded && s.owner == owner
	s.mu.RUnlock()
	if same {
		return nil
	}

	records, err := s.read(ctx, owner.StorageKey())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = nil
	if err != nil {
		s.loaded = false
		s.owner = identity.OwnerKey{}
		s.records = nil
		return err
	}
	s.loaded = true
	s.owner = owner
	s.records = records

	slog.DebugContext(ctx, "Expense store loaded",
		"component", "store",
		"owner_key", owner.StorageKey(),
		"count", len(records))
	return nil
}

func (s *Store) read(ctx context.Context, key string) ([]core.Expense, error) {
	blob, ok, err := s.medium.Get(ctx, key)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read", Key: key, Err: err}
	}
	if !ok {
		return []core.Expense{}, nil
	}
	records, err := storage.DecodeExpenses(blob)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read", Key: key, Err: err}
	}
	if err := checkRecords(records); err != nil {
		return nil, &core.PersistenceError{Op: "read", Key: key, Err: err}
	}
	return records, nil
}

// checkRecords rejects stored sequences that break the record invariants.
func checkRecords(records []core.Expense) error {
	seen := make(map[string]struct{}, len(records))
	for i, e := range records {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("record %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Owner returns the active owner key; ok is false before the first Load.
func (s *Store) Owner() (identity.OwnerKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.loaded
}

// Create validates in, appends a new record stamped with the active owner
// and persists the full sequence.
func (s *Store) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}

	var created core.Expense
	err := s.mutate(ctx, OpCreate, func(owner identity.OwnerKey, records []core.Expense) ([]core.Expense, string, bool, error) {
		created = core.Expense{
			ID:       s.newID(),
			Title:    in.Title,
			Amount:   in.Amount,
			Category: in.Category,
			Date:     in.Date,
			UserID:   owner.UserID(),
		}
		return append(records, created), created.ID, false, nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return created, nil
}

// Update replaces every field of the record with the given id except the id
// and owner stamp. It returns core.ErrNotFound when no such record exists.
// A successful update clears the edit selection.
func (s *Store) Update(ctx context.Context, id string, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalized()

	var updated core.Expense
	err := s.mutate(ctx, OpUpdate, func(_ identity.OwnerKey, records []core.Expense) ([]core.Expense, string, bool, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, "", false, core.ErrNotFound
		}
		if err := in.Validate(); err != nil {
			return nil, "", false, err
		}
		updated = records[i]
		updated.Title = in.Title
		updated.Amount = in.Amount
		updated.Category = in.Category
		updated.Date = in.Date
		records[i] = updated
		return records, id, true, nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return updated, nil
}

// Delete removes the record with the given id. A missing id is not an error
// and writes nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, OpDelete, func(_ identity.OwnerKey, records []core.Expense) ([]core.Expense, string, bool, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, "", false, errNoop
		}
		return append(records[:i], records[i+1:]...), id, false, nil
	})
}

var errNoop = errors.New("noop")

type mutation func(owner identity.OwnerKey, records []core.Expense) (next []core.Expense, id string, clearEditing bool, err error)

// mutate builds the next sequence on a copy, writes the mirror and only then
// swaps it in.
func (s *Store) mutate(ctx context.Context, op string, fn mutation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	loaded, owner := s.loaded, s.owner
	working := make([]core.Expense, len(s.records), len(s.records)+1)
	copy(working, s.records)
	s.mu.RUnlock()

	if !loaded {
		return ErrNotLoaded
	}

	next, id, clearEditing, err := fn(owner, working)
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}

	key := owner.StorageKey()
	blob, err := storage.EncodeExpenses(next)
	if err != nil {
		return &core.PersistenceError{Op: "write", Key: key, Err: err}
	}
	if err := s.medium.Set(ctx, key, blob); err != nil {
		return &core.PersistenceError{Op: "write", Key: key, Err: err}
	}

	s.mu.Lock()
	s.records = next
	if clearEditing || (s.editing != nil && indexOf(next, s.editing.ID) < 0) {
		s.editing = nil
	}
	snap := s.snapshotLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, op, id, snap)
	}
	return nil
}

// SelectForEdit sets the record being edited; nil clears the selection.
func (s *Store) SelectForEdit(rec *core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil {
		s.editing = nil
		return
	}
	cp := *rec
	s.editing = &cp
}

// Editing returns the record selected for edit, if any.
func (s *Store) Editing() (core.Expense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.editing == nil {
		return core.Expense{}, false
	}
	return *s.editing, true
}

// Records returns a copy of the current sequence.
func (s *Store) Records() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Expense(nil), s.records...)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (core.Expense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.records, id); i >= 0 {
		return s.records[i], true
	}
	return core.Expense{}, false
}

// Snapshot returns the current sequence and its derived views.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	records := append([]core.Expense(nil), s.records...)
	snap := Snapshot{
		Owner:      s.owner,
		Records:    records,
		ByCategory: core.ByCategory(records),
		Shares:     core.CategoryShares(records),
		ByMonth:    core.ByMonth(records),
	}
	snap.Summary, snap.HasData = core.Summarize(records)
	if s.editing != nil {
		cp := *s.editing
		snap.Editing = &cp
	}
	return snap
}

func indexOf(records []core.Expense, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
