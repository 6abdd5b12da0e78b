package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-matching/internal/booking"
	"github.com/example/trip-matching/internal/dispatch"
	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/ingest"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/pricing"
	"github.com/example/trip-matching/internal/session"
)

var errBadRequest = errors.New("bad request")

// DriverPublisher forwards driver records to the event stream.
type DriverPublisher interface {
	PublishDriver(ctx context.Context, d models.Driver) error
}

type BookingLookup interface {
	Get(id string) (models.Booking, bool)
}

type Options struct {
	Sessions *session.Manager
	Fleet    matcher.Source
	// UpsertDriver stores a driver record in the fleet. Nil disables
	// POST /internal/drivers.
	UpsertDriver  func(ctx context.Context, d models.Driver) error
	Publisher     DriverPublisher
	Bookings      BookingLookup
	WS            *dispatch.WSRegistry
	NearbyRadiusM float64
	Logger        *slog.Logger
}

type Server struct {
	opts   Options
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NearbyRadiusM <= 0 {
		opts.NearbyRadiusM = matcher.DefaultNearbyMeters
	}
	if opts.Fleet == nil {
		opts.Fleet = matcher.StaticSource(nil)
	}
	s := &Server{opts: opts, logger: logger.With("component", "http"), mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.withSession(s.handleGetSession)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/pickup", s.withSession(s.handleSetPickup)).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/destination", s.withSession(s.handleSetDestination)).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/route", s.withSession(s.handleRoute)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/search", s.withSession(s.handleSearch)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/select", s.withSession(s.handleSelect)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/book", s.withSession(s.handleBook)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/back", s.withSession(s.handleBack)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/payment", s.withSession(s.handlePayment)).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/confirm", s.withSession(s.handleConfirm)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/clear", s.withSession(s.handleClear)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/zoom", s.withSession(s.handleZoom)).Methods(http.MethodPost)
	api.HandleFunc("/drivers/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)

	s.mux.HandleFunc("/internal/drivers", s.handleDriverUpsert).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws/sessions/{id}", s.withSession(s.handleWS)).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.opts.Sessions.Get(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrStale):
		return http.StatusConflict
	case errors.Is(err, booking.ErrConfirmDisabled), errors.Is(err, pricing.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest), errors.Is(err, booking.ErrNoSuchMatch),
		errors.Is(err, pricing.ErrNoPaymentMethod), errors.Is(err, pricing.ErrUnknownPaymentMethod),
		errors.Is(err, ingest.ErrInvalidDriver):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrDirectRoute):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string        `json:"error"`
	View  *booking.View `json:"view,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeFlow answers a flow operation with the resulting view, attached to
// the error when there is one.
func (s *Server) writeFlow(w http.ResponseWriter, v booking.View, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error(), View: &v})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func validCoord(c models.Coord) error {
	if c.Lon < -180 || c.Lon > 180 || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: coordinate out of range", errBadRequest)
	}
	return nil
}

type createSessionRequest struct {
	Device *models.Coord `json:"device"`
	Wallet *struct {
		BKCredit     int64 `json:"bkcredit"`
		BKCreditPlus int64 `json:"bkcreditplus"`
	} `json:"wallet"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Device != nil {
		if err := validCoord(*req.Device); err != nil {
			s.writeError(w, err)
			return
		}
	}
	opts := session.CreateOptions{Locator: geo.StaticLocator{Position: req.Device}}
	if req.Wallet != nil {
		wl := pricing.NewWallet(req.Wallet.BKCredit, req.Wallet.BKCreditPlus)
		opts.Wallet = &wl
	}
	sess := s.opts.Sessions.Create(r.Context(), opts)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.opts.Sessions.Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	if s.opts.WS != nil {
		s.opts.WS.Close(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeLocation(r *http.Request) (models.NamedLocation, error) {
	var loc models.NamedLocation
	if err := decode(r, &loc); err != nil {
		return loc, err
	}
	return loc, validCoord(loc.Coordinates)
}

func (s *Server) handleSetPickup(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	loc, err := decodeLocation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := sess.SetPickup(r.Context(), loc)
	s.writeFlow(w, v, err)
}

func (s *Server) handleSetDestination(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	loc, err := decodeLocation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := sess.SetDestination(r.Context(), loc)
	s.writeFlow(w, v, err)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	v, err := sess.Route(r.Context())
	s.writeFlow(w, v, err)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	v, err := sess.Search(r.Context())
	s.writeFlow(w, v, err)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Index *int `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Index == nil {
		s.writeError(w, fmt.Errorf("%w: index is required", errBadRequest))
		return
	}
	v, err := sess.Select(r.Context(), *req.Index)
	s.writeFlow(w, v, err)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	v, err := sess.Book(r.Context())
	s.writeFlow(w, v, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	v, err := sess.Back(r.Context())
	s.writeFlow(w, v, err)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Method models.PaymentMethod `json:"method"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v, err := sess.ChoosePayment(r.Context(), req.Method)
	s.writeFlow(w, v, err)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	v, err := sess.Confirm(r.Context())
	s.writeFlow(w, v, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Clear(r.Context()))
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Zoom *float64 `json:"zoom"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Zoom == nil {
		s.writeError(w, fmt.Errorf("%w: zoom is required", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, sess.Zoom(r.Context(), *req.Zoom))
}

func queryFloat(r *http.Request, key string, def float64, required bool) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", errBadRequest, key)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, key)
	}
	return f, nil
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	lon, err := queryFloat(r, "lon", 0, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	lat, err := queryFloat(r, "lat", 0, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	radius, err := queryFloat(r, "radius", s.opts.NearbyRadiusM, false)
	if err == nil && radius <= 0 {
		err = fmt.Errorf("%w: radius must be > 0", errBadRequest)
	}
	p := models.Coord{Lon: lon, Lat: lat}
	if err == nil {
		err = validCoord(p)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	pool, err := matcher.Pool(r.Context(), s.opts.Fleet, p, radius)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": matcher.FindNearby(p, pool, radius)})
}

func (s *Server) handleDriverUpsert(w http.ResponseWriter, r *http.Request) {
	if s.opts.UpsertDriver == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "fleet is read-only"})
		return
	}
	var d models.Driver
	if err := decode(r, &d); err != nil {
		s.writeError(w, err)
		return
	}
	if err := ingest.ValidateDriver(d); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.opts.UpsertDriver(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishDriver(r.Context(), d); err != nil {
			s.logger.Warn("driver publish failed", "driver_id", d.ID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	if s.opts.Bookings == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "booking not found"})
		return
	}
	b, ok := s.opts.Bookings.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "booking not found"})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if s.opts.WS == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "websocket surface disabled"})
		return
	}
	s.opts.WS.Serve(w, r, sess.ID(), sess.Attach, func(z float64) {
		sess.Zoom(context.Background(), z)
	})
}
