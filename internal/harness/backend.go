package harness

import (
	"context"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/pipeline"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/store"
)

// Backend persists version history between days.
type Backend interface {
	Current(ctx context.Context) ([]record.VersionRecord, error)
	Commit(ctx context.Context, res *pipeline.Result) error
	Versions(ctx context.Context) ([]record.VersionRecord, error)
	CheckInvariants(ctx context.Context) error
}

// MemoryBackend keeps history in an engine.History.
type MemoryBackend struct {
	History *engine.History
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{History: engine.NewHistory()}
}

func (m *MemoryBackend) Current(context.Context) ([]record.VersionRecord, error) {
	return m.History.Current(), nil
}

func (m *MemoryBackend) Commit(_ context.Context, res *pipeline.Result) error {
	return m.History.Apply(res.Plan)
}

func (m *MemoryBackend) Versions(context.Context) ([]record.VersionRecord, error) {
	return m.History.All(), nil
}

func (m *MemoryBackend) CheckInvariants(context.Context) error {
	return m.History.CheckInvariants()
}

// StoreBackend persists history in SQLite.
type StoreBackend struct {
	Store *store.Store
}

// NewStoreBackend wraps an open store. The caller owns closing it.
func NewStoreBackend(st *store.Store) *StoreBackend {
	return &StoreBackend{Store: st}
}

func (s *StoreBackend) Current(ctx context.Context) ([]record.VersionRecord, error) {
	return s.Store.LoadCurrent(ctx)
}

func (s *StoreBackend) Commit(ctx context.Context, res *pipeline.Result) error {
	_, err := s.Store.Commit(ctx, store.Run{
		Plan:        res.Plan,
		Quarantined: res.Quarantined,
		Stats:       res.Stats,
	})
	return err
}

func (s *StoreBackend) Versions(ctx context.Context) ([]record.VersionRecord, error) {
	return s.Store.AllVersions(ctx)
}

func (s *StoreBackend) CheckInvariants(ctx context.Context) error {
	return s.Store.CheckInvariants(ctx)
}
