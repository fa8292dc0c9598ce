package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/njoerd114/holocron/internal/model"
)

// --- Mock Fetcher -------------------------------------------------------------

type mockFetcher struct {
	mu        sync.Mutex
	resources map[string][]model.RemoteRecord
	err       error
	calls     []string
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{resources: make(map[string][]model.RemoteRecord)}
}

func (m *mockFetcher) set(resource string, records ...model.RemoteRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[resource] = records
}

func (m *mockFetcher) FetchAll(_ context.Context, resource string) ([]model.RemoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, resource)
	if m.err != nil {
		return nil, m.err
	}
	return m.resources[resource], nil
}

// --- Mock Store ---------------------------------------------------------------

// mockStore keeps records per kind keyed by remote id, with the same
// create-only and vote semantics as the SQLite store.
type mockStore struct {
	mu       sync.Mutex
	byRemote map[model.Kind]map[int64]model.Record
	byID     map[model.Kind]map[int64]model.Record
	nextID   int64
	writes   int
	failOn   int64 // remote id that makes GetOrCreate fail; 0 disables
}

func newMockStore() *mockStore {
	return &mockStore{
		byRemote: make(map[model.Kind]map[int64]model.Record),
		byID:     make(map[model.Kind]map[int64]model.Record),
	}
}

func (m *mockStore) GetOrCreate(_ context.Context, rec model.Record) (model.Record, model.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind, meta := rec.Kind(), rec.Meta()
	if m.failOn != 0 && meta.RemoteID == m.failOn {
		return nil, 0, fmt.Errorf("disk full")
	}
	if m.byRemote[kind] == nil {
		m.byRemote[kind] = make(map[int64]model.Record)
		m.byID[kind] = make(map[int64]model.Record)
	}
	if existing, ok := m.byRemote[kind][meta.RemoteID]; ok {
		return existing, model.OutcomeExisting, nil
	}

	m.nextID++
	m.writes++
	meta.ID = m.nextID
	meta.Votes = 0
	m.byRemote[kind][meta.RemoteID] = rec
	m.byID[kind][meta.ID] = rec
	return rec, model.OutcomeCreated, nil
}

func (m *mockStore) IncrementVotes(_ context.Context, kind model.Kind, id int64) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[kind][id]
	if !ok {
		return nil, &model.NotFoundError{Kind: kind, ID: id}
	}
	m.writes++
	rec.Meta().Votes++
	return rec, nil
}

func (m *mockStore) byRemoteID(kind model.Kind, remoteID int64) model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRemote[kind][remoteID]
}

func (m *mockStore) count(kind model.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRemote[kind])
}

func (m *mockStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
