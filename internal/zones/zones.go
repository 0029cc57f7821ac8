// Package zones provides the bounding-box lookup table used to tag a
// request's pickup coordinate with a named campus-area zone.
package zones

import "strings"

// Boundary is a rectangular lat/lon bounding box for one named zone.
type Boundary struct {
	Name        string
	LatMin      float64
	LatMax      float64
	LonMin      float64
	LonMax      float64
}

// Contains reports whether the coordinate falls inside the box.
func (b Boundary) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// boundaries is ordered so that specific neighborhoods are matched before
// the broad "beirut" fallback.
var boundaries = []Boundary{
	{Name: "hamra", LatMin: 33.893, LatMax: 33.903, LonMin: 35.475, LonMax: 35.488},
	{Name: "achrafieh", LatMin: 33.880, LatMax: 33.895, LonMin: 35.513, LonMax: 35.532},
	{Name: "bchara el khoury", LatMin: 33.870, LatMax: 33.882, LonMin: 35.505, LonMax: 35.520},
	{Name: "forn el chebak", LatMin: 33.862, LatMax: 33.872, LonMin: 35.524, LonMax: 35.540},
	{Name: "ghobeiry", LatMin: 33.844, LatMax: 33.856, LonMin: 35.481, LonMax: 35.498},
	{Name: "hadath", LatMin: 33.832, LatMax: 33.846, LonMin: 35.510, LonMax: 35.530},
	{Name: "hazmieh", LatMin: 33.840, LatMax: 33.855, LonMin: 35.535, LonMax: 35.555},
	{Name: "dawra", LatMin: 33.893, LatMax: 33.905, LonMin: 35.540, LonMax: 35.558},
	{Name: "khalde", LatMin: 33.772, LatMax: 33.792, LonMin: 35.470, LonMax: 35.492},
	{Name: "saida", LatMin: 33.550, LatMax: 33.580, LonMin: 35.360, LonMax: 35.390},
	{Name: "jounieh", LatMin: 33.965, LatMax: 33.990, LonMin: 35.610, LonMax: 35.640},
	{Name: "baabda", LatMin: 33.825, LatMax: 33.845, LonMin: 35.535, LonMax: 35.555},
	{Name: "beirut", LatMin: 33.850, LatMax: 33.920, LonMin: 35.460, LonMax: 35.560},
}

// byName is built once from boundaries for O(1) exact lookups.
var byName = func() map[string]Boundary {
	m := make(map[string]Boundary, len(boundaries))
	for _, b := range boundaries {
		m[b.Name] = b
	}
	return m
}()

// Normalize lowercases and trims a zone name the way stored rows are keyed.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ByName returns the boundary for an exact (normalized) zone name.
func ByName(name string) (Boundary, bool) {
	b, ok := byName[Normalize(name)]
	return b, ok
}

// ForCoordinates returns the first boundary, in declaration order, whose box
// contains (lat, lon). Declaration order runs specific-to-broad so a point
// inside both "hamra" and "beirut" resolves to "hamra".
func ForCoordinates(lat, lon float64) (Boundary, bool) {
	for _, b := range boundaries {
		if b.Contains(lat, lon) {
			return b, true
		}
	}
	return Boundary{}, false
}

// All returns a copy of the zone table in declaration order.
func All() []Boundary {
	out := make([]Boundary, len(boundaries))
	copy(out, boundaries)
	return out
}
