package catalog

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/vectier/model"
)

// Memory is an in-process Catalog.
type Memory struct {
	mu      sync.RWMutex
	entries map[model.TierID]map[string]Entry
}

var _ Catalog = (*Memory)(nil)

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{entries: make(map[model.TierID]map[string]Entry)}
}

func (m *Memory) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(e); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	batches, ok := m.entries[e.Tier]
	if !ok {
		batches = make(map[string]Entry)
		m.entries[e.Tier] = batches
	}
	if _, ok := batches[e.Batch]; ok {
		return ErrExists
	}
	batches[e.Batch] = e.Clone()
	return nil
}

func (m *Memory) Entries(ctx context.Context, tier model.TierID) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries[tier]))
	for _, e := range m.entries[tier] {
		out = append(out, e.Clone())
	}
	SortEntries(out)
	return out, nil
}

func (m *Memory) Hide(ctx context.Context, tier model.TierID, batch string, ids []model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[tier][batch]
	if !ok {
		return ErrNotFound
	}
	HideIDs(&e, ids)
	m.entries[tier][batch] = e
	return nil
}

func (m *Memory) Tiers(ctx context.Context) ([]model.TierID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.TierID, 0, len(m.entries))
	for tier, batches := range m.entries {
		if len(batches) > 0 {
			out = append(out, tier)
		}
	}
	slices.Sort(out)
	return out, nil
}
