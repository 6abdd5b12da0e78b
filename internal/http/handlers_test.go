package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trip-matching/internal/booking"
	"github.com/example/trip-matching/internal/dispatch"
	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/pricing"
	"github.com/example/trip-matching/internal/session"
	"github.com/example/trip-matching/internal/storage"
)

// lineRouter answers every request with about 5 km, slightly more for longer legs.
type lineRouter struct{ fail bool }

func (l lineRouter) FetchRoute(ctx context.Context, w []models.Coord) (models.RouteResult, error) {
	if l.fail {
		return models.RouteResult{}, errors.New("routing down")
	}
	var m float64
	for i := 1; i < len(w); i++ {
		dx := (w[i].Lon - w[i-1].Lon) * 111000
		dy := (w[i].Lat - w[i-1].Lat) * 111000
		m += dx*dx + dy*dy
	}
	return models.RouteResult{Geometry: w, DistanceMeters: 5000 + m/1e9, DurationSeconds: 600}, nil
}

type fixture struct {
	srv      *httptest.Server
	store    *storage.MemoryStore
	mu       sync.Mutex
	upserted []models.Driver
}

func driver(id string, lon, lat float64) models.Driver {
	return models.Driver{
		ID:              id,
		Available:       true,
		CurrentLocation: models.NamedLocation{Coordinates: models.Coord{Lon: lon, Lat: lat}},
		Destination:     models.NamedLocation{Coordinates: models.Coord{Lon: 105.819, Lat: 21.009}},
	}
}

func newFixture(t *testing.T, router lineRouter) *fixture {
	t.Helper()
	fleet := matcher.StaticSource{driver("A", 105.801, 21.001), driver("near", 105.8003, 21.0002)}
	ws := dispatch.NewWSRegistry(nil)
	fx := &fixture{store: storage.NewMemoryStore()}
	mgr := session.NewManager(session.Deps{
		Router:   router,
		Matcher:  &matcher.Service{Router: router},
		Fleet:    fleet,
		Wallet:   pricing.NewWallet(50000, 100000),
		Sink:     session.MultiSink{fx.store, ws},
		Surfaces: ws.Surface,
	})
	s := NewServer(Options{
		Sessions: mgr,
		Fleet:    fleet,
		UpsertDriver: func(ctx context.Context, d models.Driver) error {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.upserted = append(fx.upserted, d)
			return nil
		},
		Bookings: fx.store,
		WS:       ws,
	})
	fx.srv = httptest.NewServer(s)
	t.Cleanup(fx.srv.Close)
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, fx.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

// viewJSON mirrors the wire shape of booking.View for decoding in tests.
type viewJSON struct {
	ID          string                `json:"id"`
	State       string                `json:"state"`
	Device      *models.NamedLocation `json:"device"`
	Nearby      []models.Driver       `json:"nearby"`
	DirectRoute *booking.RouteSummary `json:"directRoute"`
	RouteError  string                `json:"routeError"`
	Matches     []booking.RankedMatch `json:"matches"`
	Quote       *pricing.Quote        `json:"quote"`
	CanConfirm  bool                  `json:"canConfirm"`
	Booking     *models.Booking       `json:"booking"`
}

func decodeView(t *testing.T, b []byte) viewJSON {
	t.Helper()
	var v viewJSON
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func (fx *fixture) create(t *testing.T) viewJSON {
	t.Helper()
	resp, body := fx.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"device": map[string]float64{"lon": 105.8, "lat": 21}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	return decodeView(t, body)
}

var (
	pickupBody      = map[string]any{"coordinates": map[string]float64{"lon": 105.800, "lat": 21.000}, "name": "Pickup"}
	destinationBody = map[string]any{"coordinates": map[string]float64{"lon": 105.820, "lat": 21.010}, "name": "Destination"}
)

func TestBookingHappyPath(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	v := fx.create(t)
	assert.Equal(t, "idle", v.State)
	assert.Equal(t, "Your location", v.Device.Name)
	base := "/api/v1/sessions/" + v.ID

	resp, body := fx.do(t, http.MethodPut, base+"/pickup", pickupBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	assert.Equal(t, "locations_partial", v.State)
	require.Len(t, v.Nearby, 1)
	assert.Equal(t, "near", v.Nearby[0].ID)

	resp, body = fx.do(t, http.MethodPut, base+"/destination", destinationBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	assert.Equal(t, "route_ready", v.State)
	require.NotNil(t, v.DirectRoute)

	resp, body = fx.do(t, http.MethodPost, base+"/search", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	assert.Equal(t, "matched", v.State)
	require.Len(t, v.Matches, 2)
	assert.Equal(t, 1, v.Matches[0].Rank)

	resp, body = fx.do(t, http.MethodPost, base+"/select", map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "driver_selected", decodeView(t, body).State)

	resp, body = fx.do(t, http.MethodPost, base+"/book", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	require.NotNil(t, v.Quote)
	assert.Equal(t, pricing.ToCredit(v.Quote.PriceVND), v.Quote.Credits)
	assert.False(t, v.CanConfirm)

	resp, body = fx.do(t, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, body = fx.do(t, http.MethodPut, base+"/payment", map[string]string{"method": "cash"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decodeView(t, body).CanConfirm)

	resp, body = fx.do(t, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	assert.Equal(t, "confirmed", v.State)
	require.NotNil(t, v.Booking)

	resp, body = fx.do(t, http.MethodGet, "/api/v1/bookings/"+v.Booking.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var b models.Booking
	require.NoError(t, json.Unmarshal(body, &b))
	assert.Equal(t, models.PaymentCash, b.PaymentMethod)

	resp, body = fx.do(t, http.MethodPost, base+"/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", decodeView(t, body).State)
}

func TestErrorStatuses(t *testing.T) {
	fx := newFixture(t, lineRouter{})

	resp, _ := fx.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	v := fx.create(t)
	base := "/api/v1/sessions/" + v.ID

	resp, body := fx.do(t, http.MethodPost, base+"/book", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var eb errorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Contains(t, eb.Error, "cannot book while idle")
	require.NotNil(t, eb.View)

	resp, _ = fx.do(t, http.MethodPut, base+"/pickup", map[string]any{"coordinates": map[string]float64{"lon": 500, "lat": 0}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fx.do(t, http.MethodPut, base+"/pickup", pickupBody)
	fx.do(t, http.MethodPut, base+"/destination", destinationBody)
	fx.do(t, http.MethodPost, base+"/search", nil)

	resp, _ = fx.do(t, http.MethodPost, base+"/select", map[string]int{"index": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = fx.do(t, http.MethodPost, base+"/select", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = fx.do(t, http.MethodGet, "/api/v1/bookings/none", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = fx.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = fx.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDirectRouteFailureStatus(t *testing.T) {
	fx := newFixture(t, lineRouter{fail: true})
	base := "/api/v1/sessions/" + fx.create(t).ID
	fx.do(t, http.MethodPut, base+"/pickup", pickupBody)

	resp, body := fx.do(t, http.MethodPut, base+"/destination", destinationBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decodeView(t, body)
	assert.Equal(t, "locations_set", v.State)
	assert.Contains(t, v.RouteError, "routing down")

	resp, _ = fx.do(t, http.MethodPost, base+"/route", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestNearbyEndpoint(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	resp, body := fx.do(t, http.MethodGet, "/api/v1/drivers/nearby?lon=105.8&lat=21", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Drivers []models.Driver `json:"drivers"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Drivers, 1)
	assert.Equal(t, "near", out.Drivers[0].ID)

	resp, body = fx.do(t, http.MethodGet, "/api/v1/drivers/nearby?lon=105.8&lat=21&radius=500", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Drivers, 2)

	resp, _ = fx.do(t, http.MethodGet, "/api/v1/drivers/nearby?lon=x&lat=21", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = fx.do(t, http.MethodGet, "/api/v1/drivers/nearby?lat=21", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDriverUpsert(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	resp, _ := fx.do(t, http.MethodPost, "/internal/drivers", driver("new", 105.9, 21.1))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, fx.upserted, 1)
	assert.Equal(t, "new", fx.upserted[0].ID)

	resp, _ = fx.do(t, http.MethodPost, "/internal/drivers", map[string]string{"name": "anon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	resp, body := fx.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = fx.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "trip_matching_http_requests_total")
}

func TestWebsocketSurface(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	v := fx.create(t)
	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "/ws/sessions/" + v.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var replay dispatch.Message
	require.NoError(t, conn.ReadJSON(&replay))
	require.Equal(t, dispatch.TypeMap, replay.Type)
	assert.Equal(t, mapsync.RoleSelf, replay.Commands[0].Role)

	z := 18.0
	require.NoError(t, conn.WriteJSON(dispatch.Message{Type: dispatch.TypeZoom, Zoom: &z}))
	require.Eventually(t, func() bool {
		_, body := fx.do(t, http.MethodGet, "/api/v1/sessions/"+v.ID, nil)
		var out struct {
			Zoom float64 `json:"zoom"`
		}
		_ = json.Unmarshal(body, &out)
		return out.Zoom == 18
	}, time.Second, 10*time.Millisecond)

	fx.do(t, http.MethodPut, "/api/v1/sessions/"+v.ID+"/pickup", pickupBody)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg dispatch.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, dispatch.TypeMap, msg.Type)
	require.NotEmpty(t, msg.Commands)
	assert.Equal(t, mapsync.RolePickup, msg.Commands[0].Role)

	resp, _ := fx.do(t, http.MethodGet, "/ws/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketReceivesSelfMarkerAfterCreate(t *testing.T) {
	fx := newFixture(t, lineRouter{})
	v := fx.create(t)
	fx.do(t, http.MethodPut, "/api/v1/sessions/"+v.ID+"/pickup", pickupBody)

	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "/ws/sessions/" + v.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg dispatch.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, dispatch.TypeMap, msg.Type)
	roles := map[mapsync.Role]mapsync.Op{}
	for _, c := range msg.Commands {
		roles[c.Role] = c.Op
	}
	assert.Equal(t, mapsync.OpAddMarker, roles[mapsync.RoleSelf])
	assert.Equal(t, mapsync.OpAddMarker, roles[mapsync.RolePickup])
}
