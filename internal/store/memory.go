package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps postings in process with the same upsert-by-url
// semantics as Store. It backs dry runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*PostingRow
	nextID int
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]*PostingRow),
		now:  time.Now,
	}
}

func (m *MemoryStore) InitSchema(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Upsert(ctx context.Context, p Posting) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	if p.URL == nil || strings.TrimSpace(*p.URL) == "" {
		return &StoreError{Op: "upsert", Err: ErrMissingURL}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if row, ok := m.rows[*p.URL]; ok {
		row.Posting = p
		row.UpdatedAt = now
		return nil
	}
	m.nextID++
	m.rows[*p.URL] = &PostingRow{
		ID:        m.nextID,
		Posting:   p,
		ScrapedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]PostingRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultRecentLimit, maxRecentLimit)

	m.mu.Lock()
	out := make([]PostingRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, *row)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored postings.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
