package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// DefaultMemoryCapacity keeps a day of actions at the default loop interval.
const DefaultMemoryCapacity = 8640

// MemoryProvider keeps the most recent actions in process memory. Once full,
// the oldest action is dropped for every new one.
type MemoryProvider struct {
	mu       sync.RWMutex
	capacity int
	actions  []types.Action
}

func configuredMemory() *MemoryProvider {
	capacity := DefaultMemoryCapacity
	lflag.JSON(&capacity, "storage-memory-capacity", capacity, "Number of actions kept by the memory storage provider")

	m := &MemoryProvider{}

	lflag.Do(func() {
		if capacity < 1 {
			panic(fmt.Sprintf("storage-memory-capacity must be positive, got %d", capacity))
		}
		m.capacity = capacity
	})

	return m
}

// NewMemory returns a MemoryProvider holding at most capacity actions.
func NewMemory(capacity int) *MemoryProvider {
	return &MemoryProvider{capacity: max(capacity, 1)}
}

func compareActions(a types.Action, t time.Time) int {
	return a.Timestamp.Compare(t)
}

// InsertAction implements Database.
func (m *MemoryProvider) InsertAction(ctx context.Context, action types.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, found := slices.BinarySearchFunc(m.actions, action.Timestamp, compareActions)
	if found {
		return fmt.Errorf("failed to insert action at %s: %w", action.Timestamp.Format(time.RFC3339), ErrDuplicateAction)
	}
	m.actions = slices.Insert(m.actions, i, action)
	if over := len(m.actions) - m.capacity; over > 0 {
		m.actions = slices.Delete(m.actions, 0, over)
	}
	return nil
}

// GetActionHistory implements Database.
func (m *MemoryProvider) GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, _ := slices.BinarySearchFunc(m.actions, start, compareActions)
	to, _ := slices.BinarySearchFunc(m.actions, end, compareActions)
	if to <= from {
		return nil, nil
	}
	return slices.Clone(m.actions[from:to]), nil
}

// GetLatestAction implements Database.
func (m *MemoryProvider) GetLatestAction(ctx context.Context) (*types.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.actions) == 0 {
		return nil, nil
	}
	a := m.actions[len(m.actions)-1]
	return &a, nil
}

// Close implements Database.
func (m *MemoryProvider) Close() error {
	return nil
}
