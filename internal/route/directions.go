package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/trip-matching/internal/models"
)

// DirectionsClient queries an OSRM-compatible HTTP API. Mapbox Directions
// uses the same response schema, so one client serves both.
type DirectionsClient struct {
	Provider string
	BaseURL  string
	Path     string // path prefix before the coordinate list
	Query    url.Values
	Client   *http.Client
}

// NewOSRMClient targets {endpoint}/route/v1/driving.
func NewOSRMClient(endpoint string, timeout time.Duration) *DirectionsClient {
	return &DirectionsClient{
		Provider: "osrm",
		BaseURL:  strings.TrimRight(endpoint, "/"),
		Path:     "/route/v1/driving/",
		Query:    url.Values{"geometries": {"geojson"}, "overview": {"full"}},
		Client:   &http.Client{Timeout: timeout},
	}
}

// NewMapboxClient targets {baseURL}/directions/v5/mapbox/driving.
func NewMapboxClient(baseURL, accessToken string, timeout time.Duration) *DirectionsClient {
	if baseURL == "" {
		baseURL = "https://api.mapbox.com"
	}
	return &DirectionsClient{
		Provider: "mapbox",
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Path:     "/directions/v5/mapbox/driving/",
		Query:    url.Values{"geometries": {"geojson"}, "overview": {"full"}, "access_token": {accessToken}},
		Client:   &http.Client{Timeout: timeout},
	}
}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (o *DirectionsClient) FetchRoute(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	if err := checkWaypoints(waypoints); err != nil {
		return models.RouteResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url(waypoints), http.NoBody)
	if err != nil {
		return models.RouteResult{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteResult{}, fmt.Errorf("%s request: %w", o.Provider, err)
	}
	defer resp.Body.Close()

	var out directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteResult{}, fmt.Errorf("%s decode (http %d): %w", o.Provider, resp.StatusCode, err)
	}
	if out.Code != "Ok" {
		code := out.Code
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return models.RouteResult{}, &StatusError{Provider: o.Provider, Code: code, Message: out.Message}
	}
	if len(out.Routes) == 0 {
		return models.RouteResult{}, ErrNoRoute
	}
	r := out.Routes[0]
	geom := make([]models.Coord, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		geom = append(geom, models.Coord{Lon: c[0], Lat: c[1]})
	}
	return models.RouteResult{Geometry: geom, DistanceMeters: r.Distance, DurationSeconds: r.Duration}, nil
}

// url builds {base}{path}{lon,lat;lon,lat...}?{query}.
func (o *DirectionsClient) url(waypoints []models.Coord) string {
	parts := make([]string, len(waypoints))
	for i, w := range waypoints {
		parts[i] = fmt.Sprintf("%.6f,%.6f", w.Lon, w.Lat)
	}
	u := o.BaseURL + o.Path + strings.Join(parts, ";")
	if len(o.Query) > 0 {
		u += "?" + o.Query.Encode()
	}
	return u
}
