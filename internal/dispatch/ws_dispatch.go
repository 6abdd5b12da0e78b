// Package dispatch pushes map commands and bookings to the websocket
// clients rendering a session, and feeds their zoom changes back.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/models"
)

const (
	TypeMap     = "map"
	TypeBooking = "booking"
	TypeZoom    = "zoom"

	defaultWriteTimeout = 5 * time.Second
)

var ErrNoSession = errors.New("dispatch: no websocket connection for session")

// Message is the frame exchanged with a map client in both directions.
type Message struct {
	Type     string            `json:"type"`
	Commands []mapsync.Command `json:"commands,omitempty"`
	Booking  *models.Booking   `json:"booking,omitempty"`
	Zoom     *float64          `json:"zoom,omitempty"`
}

// WSConn is one connected map client. Writes are serialized.
type WSConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *WSConn) Send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteJSON(m)
}

// WSRegistry holds the map clients of every session.
type WSRegistry struct {
	WriteTimeout time.Duration
	Upgrader     websocket.Upgrader

	logger *slog.Logger
	mu     sync.RWMutex
	conns  map[string]map[*WSConn]struct{}
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{
		WriteTimeout: defaultWriteTimeout,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
		conns:  make(map[string]map[*WSConn]struct{}),
	}
}

func (r *WSRegistry) Add(sessionID string, conn *websocket.Conn) *WSConn {
	c := &WSConn{conn: conn, timeout: r.WriteTimeout}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[sessionID] == nil {
		r.conns[sessionID] = make(map[*WSConn]struct{})
	}
	r.conns[sessionID][c] = struct{}{}
	return c
}

func (r *WSRegistry) Remove(sessionID string, c *WSConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns[sessionID], c)
	if len(r.conns[sessionID]) == 0 {
		delete(r.conns, sessionID)
	}
}

// Count reports how many clients a session has.
func (r *WSRegistry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[sessionID])
}

func (r *WSRegistry) snapshot(sessionID string) []*WSConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WSConn, 0, len(r.conns[sessionID]))
	for c := range r.conns[sessionID] {
		out = append(out, c)
	}
	return out
}

// Send writes m to every client of the session. Clients that fail are
// dropped.
func (r *WSRegistry) Send(sessionID string, m Message) error {
	conns := r.snapshot(sessionID)
	if len(conns) == 0 {
		return ErrNoSession
	}
	var errs []error
	for _, c := range conns {
		if err := c.Send(m); err != nil {
			r.logger.Warn("ws send failed", "session_id", sessionID, "error", err)
			r.Remove(sessionID, c)
			_ = c.conn.Close()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close disconnects every client of a session.
func (r *WSRegistry) Close(sessionID string) {
	r.mu.Lock()
	conns := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.mu.Unlock()
	for c := range conns {
		_ = c.conn.Close()
	}
}

// Surface returns the map surface of a session. Commands for a session with
// no client are dropped.
func (r *WSRegistry) Surface(sessionID string) mapsync.Surface {
	return sessionSurface{r: r, id: sessionID}
}

type sessionSurface struct {
	r  *WSRegistry
	id string
}

func (s sessionSurface) Apply(ctx context.Context, cmds []mapsync.Command) error {
	err := s.r.Send(s.id, Message{Type: TypeMap, Commands: cmds})
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// BookingConfirmed pushes the booking to the session's clients.
func (r *WSRegistry) BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error {
	err := r.Send(sessionID, Message{Type: TypeBooking, Booking: &b})
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// AttachFunc hands join the commands that rebuild a session's map. join
// must run while no other map commands for the session can be sent.
type AttachFunc func(join func(replay []mapsync.Command) error) error

// Serve upgrades the request, registers the client with the replay from
// attach as its first map frame, and reads client frames until the
// connection closes. Zoom frames are passed to onZoom.
func (r *WSRegistry) Serve(w http.ResponseWriter, req *http.Request, sessionID string, attach AttachFunc, onZoom func(z float64)) {
	conn, err := r.Upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("ws upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	var c *WSConn
	join := func(replay []mapsync.Command) error {
		c = r.Add(sessionID, conn)
		if len(replay) == 0 {
			return nil
		}
		return c.Send(Message{Type: TypeMap, Commands: replay})
	}
	if attach == nil {
		attach = func(j func([]mapsync.Command) error) error { return j(nil) }
	}
	err = attach(join)
	defer func() {
		if c != nil {
			r.Remove(sessionID, c)
		}
		_ = conn.Close()
		r.logger.Info("ws disconnected", "session_id", sessionID)
	}()
	if err != nil {
		r.logger.Warn("ws replay failed", "session_id", sessionID, "error", err)
		return
	}
	r.logger.Info("ws connected", "session_id", sessionID)

	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("ws read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if m.Type == TypeZoom && m.Zoom != nil && onZoom != nil {
			onZoom(*m.Zoom)
		}
	}
}
