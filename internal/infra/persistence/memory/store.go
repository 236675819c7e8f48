// Package memory provides the in-memory reference implementation of the
// factory persistence store. The durable backends wrap it and snapshot its
// state on every committed write.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"factorycore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.FactoryStore = (*Store)(nil)

type (
	// Record aliases domain.Record.
	Record = domain.Record
	// Attribute aliases domain.Attribute.
	Attribute = domain.Attribute
)

// CommitHook runs under the store's write lock after a transaction succeeds
// and before its state becomes visible. Returning an error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

type nameKey struct {
	name    string
	creator string
}

type memoryState struct {
	factories map[string]*Record
	names     map[nameKey]string
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Factories map[string]Record `json:"factories"`
}

func newMemoryState() memoryState {
	return memoryState{
		factories: make(map[string]*Record),
		names:     make(map[nameKey]string),
	}
}

// clone copies the indexes. Stored records are never mutated in place, so
// sharing the pointers is safe.
func (s memoryState) clone() memoryState {
	cp := memoryState{
		factories: make(map[string]*Record, len(s.factories)),
		names:     make(map[nameKey]string, len(s.names)),
	}
	for k, v := range s.factories {
		cp.factories[k] = v
	}
	for k, v := range s.names {
		cp.names[k] = v
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{Factories: make(map[string]Record, len(state.factories))}
	for k, v := range state.factories {
		s.Factories[k] = *v.Clone()
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) (memoryState, error) {
	state := newMemoryState()
	for k, v := range s.Factories {
		rec := v.Clone()
		if rec.ID() == "" {
			rec.Factory.ID = k
		}
		if rec.ID() != k {
			return memoryState{}, fmt.Errorf("snapshot key %q holds factory %q", k, rec.ID())
		}
		if rec.Factory.Name != "" {
			key := keyOf(rec)
			if other, taken := state.names[key]; taken {
				return memoryState{}, fmt.Errorf("snapshot factories %q and %q share name %q for creator %q", other, k, key.name, key.creator)
			}
			state.names[key] = k
		}
		state.factories[k] = rec
	}
	return state, nil
}

func keyOf(r *Record) nameKey {
	return nameKey{name: r.Factory.Name, creator: r.Factory.CreatorID()}
}

// Store provides an in-memory transactional factory store.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
	newID func() string
	hook  CommitHook
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the factory id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCommitHook installs a hook invoked before each commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: domain.NewFactoryID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook. Durable wrappers call it once
// after hydrating the store.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// Len returns the number of stored factories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.factories)
}

// Transaction is a mutation set applied to a private copy of the store state.
type Transaction struct {
	store *Store
	state memoryState
	now   time.Time
}

// RunInTransaction executes fn against a copy of the state and publishes the
// copy only when fn and the commit hook both succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return domain.ServerError("persist factory state", err)
		}
	}
	s.state = tx.state
	return nil
}

// View executes fn against the committed state under a read lock.
func (s *Store) View(_ context.Context, fn func(tx *Transaction) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Transaction{store: s, state: s.state, now: s.nowFn()})
}

// Find returns a copy of the record stored under id.
func (tx *Transaction) Find(id string) (*Record, bool) {
	r, ok := tx.state.factories[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Create stores a new record within the transaction.
func (tx *Transaction) Create(r *Record) (*Record, error) {
	rec := r.Clone()
	if rec.Factory.ID == "" {
		rec.Factory.ID = tx.store.newID()
	}
	if _, exists := tx.state.factories[rec.ID()]; exists {
		return nil, domain.Conflictf("Factory with id '%s' already exists", rec.ID())
	}
	if rec.Factory.Creator != nil && rec.Factory.Creator.Created == nil {
		created := tx.now.UnixMilli()
		rec.Factory.Creator.Created = &created
	}
	for _, img := range rec.Images {
		if img.Name == "" {
			return nil, domain.InvalidArgumentf("factory image must have a name")
		}
	}
	if err := tx.claimName(rec); err != nil {
		return nil, err
	}
	tx.state.factories[rec.ID()] = rec
	return rec.Clone(), nil
}

// Update replaces the factory part of an existing record.
func (tx *Transaction) Update(r *Record) (*Record, error) {
	current, ok := tx.state.factories[r.ID()]
	if !ok {
		return nil, domain.NotFoundf("Factory with id '%s' not found", r.ID())
	}
	next := &Record{
		Factory: domain.CloneFactory(r.Factory),
		Images:  current.Images,
	}
	tx.releaseName(current)
	if err := tx.claimName(next); err != nil {
		return nil, err
	}
	tx.state.factories[next.ID()] = next
	return next.Clone(), nil
}

// Delete removes a record and its images.
func (tx *Transaction) Delete(id string) error {
	current, ok := tx.state.factories[id]
	if !ok {
		return domain.NotFoundf("Factory with id '%s' not found", id)
	}
	tx.releaseName(current)
	delete(tx.state.factories, id)
	return nil
}

// Filter returns every record matching attrs, ordered by creation time.
func (tx *Transaction) Filter(attrs []Attribute) ([]*Record, error) {
	out := make([]*Record, 0)
	for _, r := range tx.state.factories {
		values, err := domain.AttributeValues(r.Factory)
		if err != nil {
			return nil, err
		}
		if domain.MatchAttributes(values, attrs) {
			out = append(out, r)
		}
	}
	domain.SortRecords(out)
	return out, nil
}

func (tx *Transaction) claimName(r *Record) error {
	if r.Factory.Name == "" {
		return nil
	}
	key := keyOf(r)
	if owner, taken := tx.state.names[key]; taken && owner != r.ID() {
		return domain.Conflictf("Factory with name '%s' already exists for user '%s'", key.name, key.creator)
	}
	tx.state.names[key] = r.ID()
	return nil
}

func (tx *Transaction) releaseName(r *Record) {
	if r.Factory.Name == "" {
		return
	}
	key := keyOf(r)
	if tx.state.names[key] == r.ID() {
		delete(tx.state.names, key)
	}
}

// Create implements domain.FactoryStore.
func (s *Store) Create(ctx context.Context, r *Record) (*Record, error) {
	if r == nil {
		return nil, domain.InvalidArgumentf("factory required")
	}
	var created *Record
	err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		created, err = tx.Create(r)
		return err
	})
	return created, err
}

// Update implements domain.FactoryStore.
func (s *Store) Update(ctx context.Context, r *Record) (*Record, error) {
	if r == nil {
		return nil, domain.InvalidArgumentf("factory update required")
	}
	if r.ID() == "" {
		return nil, domain.InvalidArgumentf("factory id required")
	}
	var updated *Record
	err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		var err error
		updated, err = tx.Update(r)
		return err
	})
	return updated, err
}

// Remove implements domain.FactoryStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	if id == "" {
		return domain.InvalidArgumentf("factory id required")
	}
	return s.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.Delete(id)
	})
}

// GetByID implements domain.FactoryStore.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, domain.InvalidArgumentf("factory id required")
	}
	var found *Record
	err := s.View(ctx, func(tx *Transaction) error {
		r, ok := tx.Find(id)
		if !ok {
			return domain.NotFoundf("Factory with id '%s' not found", id)
		}
		found = r
		return nil
	})
	return found, err
}

// GetByAttribute implements domain.FactoryStore.
func (s *Store) GetByAttribute(ctx context.Context, maxItems, skipCount int, attrs []Attribute) ([]*Record, error) {
	limit, err := domain.CheckPaging(maxItems, skipCount)
	if err != nil {
		return nil, err
	}
	var page []*Record
	err = s.View(ctx, func(tx *Transaction) error {
		matches, err := tx.Filter(attrs)
		if err != nil {
			return domain.ServerError("filter factories", err)
		}
		page = domain.Page(matches, limit, skipCount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Record, len(page))
	for i, r := range page {
		out[i] = r.Clone()
	}
	return out, nil
}
