package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mkadit/payswitch/internal/transaction"
)

// Memory is an in-process Repository. Records are cloned on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu      sync.RWMutex
	records map[transaction.Key]*transaction.Record
	now     func() time.Time
}

// MemoryOption configures a Memory repository.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock that defines "today" for STAN lookups.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		records: make(map[transaction.Key]*transaction.Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Insert(_ context.Context, rec *transaction.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.Key]; exists {
		return ErrDuplicateKey
	}
	m.records[rec.Key] = rec.Clone()
	return nil
}

func (m *Memory) UpdateResponse(_ context.Context, key transaction.Key, update transaction.ResponseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return transaction.ErrTransactionNotFound
	}
	update.Apply(rec, m.now())
	return nil
}

func (m *Memory) FindByKey(_ context.Context, key transaction.Key) (*transaction.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, transaction.ErrTransactionNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) FindByStanToday(_ context.Context, stan string) (*transaction.Record, error) {
	today := m.now().Format(transaction.DateLayout)
	return m.latest(func(r *transaction.Record) bool {
		return r.Date == today && r.STAN() == stan
	})
}

func (m *Memory) FindByTransactionIDAndTerminal(_ context.Context, transactionID, terminalID string) (*transaction.Record, error) {
	return m.latest(func(r *transaction.Record) bool {
		return r.UniqueNo == transactionID && r.TerminalID == terminalID
	})
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) latest(match func(*transaction.Record) bool) (*transaction.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *transaction.Record
	for _, r := range m.records {
		if !match(r) {
			continue
		}
		if found == nil || r.Date+r.Time > found.Date+found.Time {
			found = r
		}
	}
	if found == nil {
		return nil, transaction.ErrTransactionNotFound
	}
	return found.Clone(), nil
}
