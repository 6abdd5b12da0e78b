package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/trip-matching/internal/booking"
	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/observability"
	"github.com/example/trip-matching/internal/pricing"
	"github.com/example/trip-matching/internal/route"
)

// BookingSink receives every confirmed booking.
type BookingSink interface {
	BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []BookingSink

func (m MultiSink) BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error {
	var errs []error
	for _, s := range m {
		if err := s.BookingConfirmed(ctx, sessionID, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps is shared by every session of a Manager.
type Deps struct {
	Router             route.Client
	Matcher            Matcher
	Fleet              matcher.Source
	ThresholdKm        float64
	NearbyRadiusMeters float64
	LocateTimeout      time.Duration
	MapConfig          mapsync.Config
	Wallet             pricing.Wallet
	Sink               BookingSink
	// Surfaces returns the map surface for a session. Nil discards commands.
	Surfaces func(sessionID string) mapsync.Surface
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

func (d *Deps) defaults() {
	if d.ThresholdKm <= 0 {
		d.ThresholdKm = matcher.DefaultThresholdKm
	}
	if d.NearbyRadiusMeters <= 0 {
		d.NearbyRadiusMeters = matcher.DefaultNearbyMeters
	}
	if d.MapConfig == (mapsync.Config{}) {
		d.MapConfig = mapsync.DefaultConfig()
	}
	if d.Fleet == nil {
		d.Fleet = matcher.StaticSource(nil)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = nowUTC
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

// Manager owns the open sessions.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	deps.defaults()
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

type CreateOptions struct {
	// Locator reports the device position. Nil uses the default center.
	Locator geo.Locator
	// Wallet overrides the default balances.
	Wallet *pricing.Wallet
}

// Create opens a session and resolves the device location.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) *Session {
	id := m.deps.NewID()
	w := m.deps.Wallet
	if opts.Wallet != nil {
		w = *opts.Wallet
	}
	var surface mapsync.Surface = mapsync.Discard{}
	if m.deps.Surfaces != nil {
		surface = m.deps.Surfaces(id)
	}
	s := &Session{
		id:      id,
		deps:    &m.deps,
		log:     m.deps.Logger.With("component", "session", "session_id", id),
		surface: surface,
		flow:    booking.NewFlow(w, m.deps.MapConfig),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	observability.SessionsActive.Inc()

	s.LocateDevice(ctx, opts.Locator)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	observability.SessionsActive.Dec()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
