package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/client/repositories/metadata"
	"github.com/jay/dadmail-client/internal/cryptox"
)

// SnapshotKey is the metadata key holding the serialized session.
const SnapshotKey = "session"

// Persister stores the persisted subset of the session. Load returns
// (nil, nil) when nothing was saved.
type Persister interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap models.Snapshot) error
	Clear(ctx context.Context) error
}

// MetadataPersister keeps the snapshot as sealed JSON in the metadata
// repository.
type MetadataPersister struct {
	repo   metadata.Repository
	sealer cryptox.Sealer
}

func NewMetadataPersister(repo metadata.Repository, sealer cryptox.Sealer) *MetadataPersister {
	if sealer == nil {
		sealer = cryptox.PlainSealer{}
	}
	return &MetadataPersister{repo: repo, sealer: sealer}
}

func (p *MetadataPersister) Load(ctx context.Context) (*models.Snapshot, error) {
	raw, err := p.repo.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	plain, err := p.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open session snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}

func (p *MetadataPersister) Save(ctx context.Context, snap models.Snapshot) error {
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	sealed, err := p.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("seal session snapshot: %w", err)
	}
	return p.repo.Set(ctx, SnapshotKey, sealed)
}

func (p *MetadataPersister) Clear(ctx context.Context) error {
	return p.repo.Delete(ctx, SnapshotKey)
}

// MemoryPersister keeps the snapshot in memory.
type MemoryPersister struct {
	mu   sync.Mutex
	snap *models.Snapshot
}

func (p *MemoryPersister) Load(context.Context) (*models.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap == nil {
		return nil, nil
	}
	c := *p.snap
	return &c, nil
}

func (p *MemoryPersister) Save(_ context.Context, snap models.Snapshot) error {
	p.mu.Lock()
	p.snap = &snap
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Clear(context.Context) error {
	p.mu.Lock()
	p.snap = nil
	p.mu.Unlock()
	return nil
}
