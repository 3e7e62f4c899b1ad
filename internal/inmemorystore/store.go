// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// # Characteristics
//
//   - **Ephemeral:** Created fresh for each runtime, never persisted
//   - **Thread-Safe:** sync.Map for snapshots, a mutex for subscriber lists
//   - **Ordered:** observers see writes to a cell in the order they happened
//
// # Concurrency Model
//
// Snapshots live in a sync.Map: the key space (all cells) is fixed after the
// graph is built while values change constantly, which is the access pattern
// sync.Map is optimized for. Subscriber lists change rarely and are guarded
// by a plain mutex; Set copies the list before calling out so observers may
// subscribe or unsubscribe from inside a callback.
package inmemorystore

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	snapshots sync.Map // Key: cell.ID, Value: nodestore.Snapshot
	version   atomic.Uint64

	mu        sync.Mutex
	nextSubID uint64
	observers map[cell.ID]map[uint64]nodestore.Observer
}

var _ nodestore.Store = (*Store)(nil)

// New creates a new, empty in-memory value store.
func New() *Store {
	return &Store{observers: make(map[cell.ID]map[uint64]nodestore.Observer)}
}

// Get returns the current snapshot of id, or a Pending one if it was never set.
func (s *Store) Get(ctx context.Context, id cell.ID) (nodestore.Snapshot, error) {
	v, ok := s.snapshots.Load(id)
	if !ok {
		return nodestore.Snapshot{Status: nodestore.StatusPending}, nil
	}
	return v.(nodestore.Snapshot), nil
}

// Set stores snap under the next version and notifies observers of id.
func (s *Store) Set(ctx context.Context, id cell.ID, snap nodestore.Snapshot) (nodestore.Snapshot, error) {
	snap.Version = s.version.Add(1)
	s.snapshots.Store(id, snap)

	s.mu.Lock()
	subs := make([]nodestore.Observer, 0, len(s.observers[id]))
	keys := make([]uint64, 0, len(s.observers[id]))
	for k := range s.observers[id] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		subs = append(subs, s.observers[id][k])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id, snap)
	}
	return snap, nil
}

// Subscribe registers fn for future writes to id.
func (s *Store) Subscribe(ctx context.Context, id cell.ID, fn nodestore.Observer) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	subID := s.nextSubID
	if s.observers[id] == nil {
		s.observers[id] = make(map[uint64]nodestore.Observer)
	}
	s.observers[id][subID] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers[id], subID)
			if len(s.observers[id]) == 0 {
				delete(s.observers, id)
			}
		})
	}, nil
}
