package mergequeue

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/simplesurance/automerger/internal/mergequeue/orderedmap"
	"github.com/simplesurance/automerger/internal/snapshot"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("queue entry not found")
	// ErrSuperseded is returned by conditional store operations when
	// the entry was replaced by a newer one.
	ErrSuperseded = errors.New("queue entry was superseded")
)

// AnyID can be passed to the conditional Store operations to match every
// entry ID.
var AnyID = uuid.Nil

// Store is the storage of the per-branch queues.
// All operations must be atomic.
// Returned entries are copies, modifying them does not change the stored
// entries.
type Store interface {
	// Enqueue appends the entry to the tail of the queue of its branch.
	// If an entry for the same change request exists in the queue, it is
	// replaced. The replacing entry keeps the position, EnqueuedAt and
	// Attempts values of the replaced one, the replaced entry is returned.
	Enqueue(ctx context.Context, e *Entry) (replaced *Entry, err error)
	// Head returns the first entry of the queue, if the queue is empty
	// nil is returned.
	Head(ctx context.Context, branch BranchID) (*Entry, error)
	// Get returns the entry for the change request.
	// If it does not exist ErrNotFound is returned.
	Get(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID) (*Entry, error)
	// List returns all entries of the queue in order.
	List(ctx context.Context, branch BranchID) ([]*Entry, error)
	// Branches returns the IDs of all non-empty queues.
	Branches(ctx context.Context) ([]BranchID, error)
	// Remove removes the entry of the change request, if id is not AnyID
	// it is only removed if it's ID matches.
	Remove(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID) (*Entry, error)
	// Requeue moves the entry with the given ID to the tail of the queue,
	// sets its state to StateQueued and its attempts and last error to the
	// passed values.
	Requeue(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, attempts int, lastErr string) error
	// SetState sets the state of the entry with the given ID.
	SetState(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, state State, lastErr string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	lock   sync.Mutex
	queues map[BranchID]*orderedmap.Map[int, *Entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: map[BranchID]*orderedmap.Map[int, *Entry]{},
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, e *Entry) (*Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	branch := e.Branch()
	q, exists := s.queues[branch]
	if !exists {
		q = orderedmap.New[int, *Entry]()
		s.queues[branch] = q
	}

	newEntry := e.Clone()
	newEntry.State = StateQueued

	if old, exists := q.Get(e.ChangeRequest.Number); exists {
		newEntry.EnqueuedAt = old.EnqueuedAt
		newEntry.Attempts = old.Attempts
		q.Replace(e.ChangeRequest.Number, newEntry)

		return old.Clone(), nil
	}

	q.EnqueueIfNotExist(e.ChangeRequest.Number, newEntry)

	return nil, nil
}

func (s *MemoryStore) Head(_ context.Context, branch BranchID) (*Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	q, exists := s.queues[branch]
	if !exists {
		return nil, nil
	}

	if e := q.First(); e != nil {
		return e.Clone(), nil
	}

	return nil, nil
}

func (s *MemoryStore) Get(_ context.Context, branch BranchID, cr snapshot.ChangeRequestID) (*Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	e, err := s._get(branch, cr, AnyID)
	if err != nil {
		return nil, err
	}

	return e.Clone(), nil
}

func (s *MemoryStore) _get(branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID) (*Entry, error) {
	q, exists := s.queues[branch]
	if !exists {
		return nil, ErrNotFound
	}

	e, exists := q.Get(cr.Number)
	if !exists {
		return nil, ErrNotFound
	}

	if id != AnyID && e.ID != id {
		return nil, ErrSuperseded
	}

	return e, nil
}

func (s *MemoryStore) List(_ context.Context, branch BranchID) ([]*Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	q, exists := s.queues[branch]
	if !exists {
		return nil, nil
	}

	result := make([]*Entry, 0, q.Len())
	q.Foreach(func(e *Entry) bool {
		result = append(result, e.Clone())
		return true
	})

	return result, nil
}

func (s *MemoryStore) Branches(context.Context) ([]BranchID, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	result := make([]BranchID, 0, len(s.queues))
	for b, q := range s.queues {
		if q.Len() == 0 {
			continue
		}
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})

	return result, nil
}

func (s *MemoryStore) Remove(_ context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID) (*Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s._get(branch, cr, id); err != nil {
		return nil, err
	}

	q := s.queues[branch]
	removed, _ := q.Dequeue(cr.Number)
	if q.Len() == 0 {
		delete(s.queues, branch)
	}

	return removed.Clone(), nil
}

func (s *MemoryStore) Requeue(_ context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, attempts int, lastErr string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	e, err := s._get(branch, cr, id)
	if err != nil {
		return err
	}

	e.Attempts = attempts
	e.LastError = lastErr
	e.State = StateQueued
	s.queues[branch].MoveToBack(cr.Number)

	return nil
}

func (s *MemoryStore) SetState(_ context.Context, branch BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, state State, lastErr string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	e, err := s._get(branch, cr, id)
	if err != nil {
		return err
	}

	e.State = state
	e.LastError = lastErr

	return nil
}
