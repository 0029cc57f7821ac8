// Package mapadapter wraps the external routing/geocoding service the
// selector calls to score candidate drivers. It mirrors the teacher's HTTP
// client idiom and wraps the remote call in a sony/gobreaker circuit
// breaker so a flapping upstream degrades to fast MapUnavailable errors
// instead of piling up slow requests.
package mapadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

// Route is the result of one origin-to-destination routing query.
type Route struct {
	DistanceKM  float64
	DurationMin float64
	URL         string
}

// Adapter is the capability the selector depends on: given an origin and a
// destination, estimate driving distance/duration.
type Adapter interface {
	Route(ctx context.Context, origin, destination domain.Coordinate) (Route, error)
	Geocode(ctx context.Context, address string) (domain.Coordinate, error)
}

// HTTPAdapter calls an external distance-matrix / geocode HTTP API, the way
// the teacher's server talks to its own dependencies: a plain *http.Client
// with a context-scoped timeout, JSON in and out.
type HTTPAdapter struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPAdapter builds an adapter against endpoint (a base URL exposing
// /route and /geocode), tripping its breaker after 5 consecutive failures
// and probing again after 30s in the half-open state.
func NewHTTPAdapter(endpoint string, client *http.Client) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	settings := gobreaker.Settings{
		Name:        "map-adapter",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPAdapter{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

type routeRequest struct {
	Origin      domain.Coordinate `json:"origin"`
	Destination domain.Coordinate `json:"destination"`
}

type routeResponse struct {
	DistanceKM  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	URL         string  `json:"url"`
	Status      string  `json:"status"`
}

func (a *HTTPAdapter) Route(ctx context.Context, origin, destination domain.Coordinate) (Route, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.doRoute(ctx, origin, destination)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Route{}, domain.NewError(domain.KindMapUnavailable, "map adapter circuit open", err)
		}
		return Route{}, err
	}
	return result.(Route), nil
}

func (a *HTTPAdapter) doRoute(ctx context.Context, origin, destination domain.Coordinate) (Route, error) {
	body, err := json.Marshal(routeRequest{Origin: origin, Destination: destination})
	if err != nil {
		return Route{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/route", bytes.NewReader(body))
	if err != nil {
		return Route{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Route{}, domain.NewError(domain.KindMapUnavailable, "route request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Route{}, domain.NewError(domain.KindSelectorFailed, "no route between points", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return Route{}, domain.NewError(domain.KindMapUnavailable, fmt.Sprintf("route status %d", resp.StatusCode), nil)
	}

	var out routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, domain.NewError(domain.KindMapUnavailable, "decode route response", err)
	}
	if out.Status != "" && out.Status != "OK" {
		return Route{}, domain.NewError(domain.KindSelectorFailed, "no route: "+out.Status, nil)
	}
	return Route{DistanceKM: out.DistanceKM, DurationMin: out.DurationMin, URL: out.URL}, nil
}

// BuildMapsLink constructs a shareable directions URL the way the original
// maps_service build_google_maps_link helper does, for callers that need a
// URL without querying distance/duration.
func BuildMapsLink(origin, destination domain.Coordinate) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&origin=%f,%f&destination=%f,%f",
		origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
}

type geocodeResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status"`
}

func (a *HTTPAdapter) Geocode(ctx context.Context, address string) (domain.Coordinate, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.doGeocode(ctx, address)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.Coordinate{}, domain.NewError(domain.KindMapUnavailable, "map adapter circuit open", err)
		}
		return domain.Coordinate{}, err
	}
	return result.(domain.Coordinate), nil
}

func (a *HTTPAdapter) doGeocode(ctx context.Context, address string) (domain.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/geocode?address="+url.QueryEscape(address), nil)
	if err != nil {
		return domain.Coordinate{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return domain.Coordinate{}, domain.NewError(domain.KindMapUnavailable, "geocode request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Coordinate{}, domain.NewError(domain.KindMapUnavailable, fmt.Sprintf("geocode status %d", resp.StatusCode), nil)
	}
	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Coordinate{}, domain.NewError(domain.KindMapUnavailable, "decode geocode response", err)
	}
	if out.Status != "" && out.Status != "OK" {
		return domain.Coordinate{}, domain.NewError(domain.KindSelectorFailed, "geocode: "+out.Status, nil)
	}
	return domain.Coordinate{Latitude: out.Latitude, Longitude: out.Longitude}, nil
}
