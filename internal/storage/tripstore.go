package storage

import (
	"context"
	"sync"

	"github.com/example/trip-matching/internal/models"
)

// BookingStore keeps confirmed bookings for lookup.
type BookingStore interface {
	BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error
	Get(id string) (models.Booking, bool)
}

type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[string]models.Booking
	bySession map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]models.Booking), bySession: make(map[string][]string)}
}

func (m *MemoryStore) BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		m.bySession[sessionID] = append(m.bySession[sessionID], b.ID)
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryStore) Get(id string) (models.Booking, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	return b, ok
}

// ForSession lists a session's bookings in confirmation order.
func (m *MemoryStore) ForSession(sessionID string) []models.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.bySession[sessionID]
	out := make([]models.Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.bookings[id])
	}
	return out
}
