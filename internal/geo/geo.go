// Package geo indexes online drivers by location. cmd/server keeps the index
// current from driver heartbeats; the candidate selector does not query it
// (it reads online drivers from the store and ranks them by route duration).
// Adapted from the teacher's nearest-single-driver dispatch index into a
// k-nearest listing.
package geo

import (
	"context"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hit is one driver's id and distance from a query point.
type Hit struct {
	DriverID string
	DistKM   float64
}

// Index is the proximity-index capability cmd/server writes heartbeats into.
type Index interface {
	Upsert(ctx context.Context, driverID string, lat, lon float64) error
	Remove(ctx context.Context, driverID string) error
	Nearby(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error)
}

// RedisIndex backs the index with Redis GEO commands, the teacher's
// production geo store.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client, key: "aubus:drivers:geo"}
}

func (i *RedisIndex) Upsert(ctx context.Context, driverID string, lat, lon float64) error {
	return i.client.GeoAdd(ctx, i.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
}

func (i *RedisIndex) Remove(ctx context.Context, driverID string) error {
	return i.client.ZRem(ctx, i.key, driverID).Err()
}

func (i *RedisIndex) Nearby(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error) {
	results, err := i.client.GeoSearchLocation(ctx, i.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{DriverID: r.Name, DistKM: r.Dist})
	}
	return hits, nil
}

// InMemory is the fallback used when no Redis endpoint is configured,
// mirroring the teacher's in-process haversine scan.
type InMemory struct {
	mu     sync.RWMutex
	coords map[string][2]float64
}

func NewInMemory() *InMemory {
	return &InMemory{coords: make(map[string][2]float64)}
}

func (g *InMemory) Upsert(_ context.Context, driverID string, lat, lon float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coords[driverID] = [2]float64{lat, lon}
	return nil
}

func (g *InMemory) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.coords, driverID)
	return nil
}

func (g *InMemory) Nearby(_ context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hits := make([]Hit, 0, len(g.coords))
	for id, pt := range g.coords {
		dist := haversineKM(lat, lon, pt[0], pt[1])
		if dist <= radiusKM {
			hits = append(hits, Hit{DriverID: id, DistKM: dist})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DistKM < hits[j].DistKM })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
