package mapadapter

import (
	"context"
	"fmt"
	"math"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

// Fake is a deterministic Adapter used by selector and orchestrator tests:
// it derives duration from great-circle distance at a fixed speed instead of
// calling out to a real routing service.
type Fake struct {
	SpeedKMH    float64
	Unavailable bool
	NoRoute     map[string]bool // keyed by "lat,lon->lat,lon", each number formatted with %g
	Geocoded    map[string]domain.Coordinate
}

func NewFake() *Fake {
	return &Fake{SpeedKMH: 30, NoRoute: map[string]bool{}, Geocoded: map[string]domain.Coordinate{}}
}

func (f *Fake) Route(_ context.Context, origin, destination domain.Coordinate) (Route, error) {
	if f.Unavailable {
		return Route{}, domain.NewError(domain.KindMapUnavailable, "fake map adapter unavailable", nil)
	}
	if f.NoRoute[fmt.Sprintf("%g,%g->%g,%g", origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)] {
		return Route{}, domain.NewError(domain.KindSelectorFailed, "fake: no route between points", nil)
	}
	km := haversineKM(origin, destination)
	return Route{DistanceKM: km, DurationMin: km / f.SpeedKMH * 60, URL: BuildMapsLink(origin, destination)}, nil
}

func (f *Fake) Geocode(_ context.Context, address string) (domain.Coordinate, error) {
	if f.Unavailable {
		return domain.Coordinate{}, domain.NewError(domain.KindMapUnavailable, "fake map adapter unavailable", nil)
	}
	if c, ok := f.Geocoded[address]; ok {
		return c, nil
	}
	return domain.Coordinate{}, domain.NewError(domain.KindSelectorFailed, "no geocode result for "+address, nil)
}

func haversineKM(a, b domain.Coordinate) float64 {
	const earthRadiusKM = 6371
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
