// Package selector implements the Candidate Selector (§4.2): given a
// pickup location, optional destination, direction and filters, it returns
// an ordered list of online drivers with feasible schedules. Grounded on
// original_source/db/maps_service.py's get_closest_online_drivers and
// _driver_can_arrive_before_schedule.
package selector

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/mapadapter"
	"github.com/JawadKotaichh/aubus/internal/zones"
)

// DefaultLimit is the candidate list length cap when Input.Limit is zero.
const DefaultLimit = 10

// ArrivalGrace is the slack added to a schedule window start when checking
// projected arrival feasibility.
const ArrivalGrace = 5 * time.Minute

// StalenessBound is how long a driver's heartbeat may age before it no
// longer counts as "online" for selection purposes.
const StalenessBound = 5 * time.Minute

// DriverDirectory lists currently online drivers, the selector's raw input
// pool before filtering.
type DriverDirectory interface {
	OnlineDrivers(ctx context.Context) ([]domain.User, error)
}

// ScheduleLookup resolves a driver's schedule window start for today, if
// any is set for the requested direction's leg.
type ScheduleLookup interface {
	WindowStartToday(ctx context.Context, driverID string, direction domain.Direction, ref time.Time) (windowStart time.Time, set bool, err error)
}

// Input is the Candidate Selector's request shape (§4.2).
type Input struct {
	RiderLat        float64
	RiderLng        float64
	DestinationLat  *float64
	DestinationLng  *float64
	Direction       domain.Direction
	RequestedTime   time.Time
	MinRating       float64
	PreferredGender domain.Gender
	ZoneFilter      string
	Limit           int
}

// Candidate is one enriched selector result (§4.2 step 6).
type Candidate struct {
	DriverID        string
	SessionToken    string
	Name            string
	Username        string
	Gender          domain.Gender
	AvgRatingDriver float64
	CompletedRides  int64
	DistanceKM      float64
	DurationMin     float64
	MapsURL         string
	Area            string
}

// Selector ranks online drivers for a pickup request.
type Selector struct {
	Directory DriverDirectory
	Schedules ScheduleLookup
	Maps      mapadapter.Adapter
	FanoutMax int // bounded concurrency for per-driver route() calls
}

func New(directory DriverDirectory, schedules ScheduleLookup, maps mapadapter.Adapter, fanoutMax int) *Selector {
	if fanoutMax <= 0 {
		fanoutMax = 8
	}
	return &Selector{Directory: directory, Schedules: schedules, Maps: maps, FanoutMax: fanoutMax}
}

func requiredLocationStates(dir domain.Direction) []domain.LocationState {
	switch dir {
	case domain.DirectionToCampus:
		return []domain.LocationState{domain.LocationHome, domain.LocationUnset}
	case domain.DirectionFromCampus:
		return []domain.LocationState{domain.LocationCampus, domain.LocationUnset}
	default:
		return nil
	}
}

func allowedState(states []domain.LocationState, s domain.LocationState) bool {
	if states == nil {
		return true
	}
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

type routed struct {
	driver domain.User
	route  mapadapter.Route
}

// Select runs the six-step algorithm described in §4.2. An empty result is
// a valid outcome, not an error (§4.2 Failure semantics); store/transport
// failures return *domain.Error with Kind SelectorFailed.
func (s *Selector) Select(ctx context.Context, in Input) ([]Candidate, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	drivers, err := s.Directory.OnlineDrivers(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindSelectorFailed, "list online drivers", err)
	}

	required := requiredLocationStates(in.Direction)
	filtered := make([]domain.User, 0, len(drivers))
	for _, d := range drivers {
		if !d.IsDriver || !d.Online {
			continue
		}
		if time.Since(d.LastSeen) > StalenessBound {
			continue
		}
		if d.AvgRatingDriver < in.MinRating {
			continue
		}
		if in.PreferredGender != "" && d.Gender != in.PreferredGender {
			continue
		}
		if in.ZoneFilter != "" {
			zb, ok := zones.ByName(in.ZoneFilter)
			if !ok || !zb.Contains(d.Latitude, d.Longitude) {
				continue
			}
		}
		if !allowedState(required, d.DriverLocationState) {
			continue
		}
		filtered = append(filtered, d)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	riderCoord := domain.Coordinate{Latitude: in.RiderLat, Longitude: in.RiderLng}

	var riderToDest *mapadapter.Route
	if in.Direction == domain.DirectionToCampus && in.DestinationLat != nil && in.DestinationLng != nil {
		destCoord := domain.Coordinate{Latitude: *in.DestinationLat, Longitude: *in.DestinationLng}
		leg, err := s.Maps.Route(ctx, riderCoord, destCoord)
		if err != nil {
			if domain.KindOf(err) == domain.KindMapUnavailable {
				// Upfront leg unavailable: schedule feasibility simply
				// cannot be checked; proceed without it rather than
				// failing selection entirely.
				riderToDest = nil
			} else {
				return nil, err
			}
		} else {
			riderToDest = &leg
		}
	}

	results := make([]*routed, len(filtered))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.FanoutMax)

	for idx, driver := range filtered {
		idx, driver := idx, driver
		group.Go(func() error {
			origin := domain.Coordinate{Latitude: driver.Latitude, Longitude: driver.Longitude}
			leg, err := s.Maps.Route(gctx, origin, riderCoord)
			if err != nil {
				if domain.KindOf(err) == domain.KindMapUnavailable || domain.KindOf(err) == domain.KindSelectorFailed {
					return nil // dropped per §4.1: MapUnavailable/NoRoute just excludes this driver
				}
				return err
			}
			if riderToDest != nil {
				windowStart, set, err := s.Schedules.WindowStartToday(gctx, driver.ID, in.Direction, in.RequestedTime)
				if err != nil {
					return domain.NewError(domain.KindSelectorFailed, "schedule lookup failed", err)
				}
				if set {
					arrival := in.RequestedTime.Add(time.Duration((leg.DurationMin + riderToDest.DurationMin) * float64(time.Minute)))
					if arrival.After(windowStart.Add(ArrivalGrace)) {
						return nil
					}
				}
			}
			results[idx] = &routed{driver: driver, route: leg}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	feasible := make([]*routed, 0, len(results))
	for _, r := range results {
		if r != nil {
			feasible = append(feasible, r)
		}
	}
	if len(feasible) == 0 {
		return nil, nil
	}

	sort.Slice(feasible, func(i, j int) bool {
		if feasible[i].route.DurationMin != feasible[j].route.DurationMin {
			return feasible[i].route.DurationMin < feasible[j].route.DurationMin
		}
		if feasible[i].driver.AvgRatingDriver != feasible[j].driver.AvgRatingDriver {
			return feasible[i].driver.AvgRatingDriver > feasible[j].driver.AvgRatingDriver
		}
		return feasible[i].driver.ID < feasible[j].driver.ID
	})

	if len(feasible) > limit {
		feasible = feasible[:limit]
	}

	out := make([]Candidate, len(feasible))
	for i, r := range feasible {
		out[i] = Candidate{
			DriverID:        r.driver.ID,
			Name:            r.driver.Name,
			Username:        r.driver.Username,
			Gender:          r.driver.Gender,
			AvgRatingDriver: r.driver.AvgRatingDriver,
			CompletedRides:  r.driver.CompletedRides,
			DistanceKM:      r.route.DistanceKM,
			DurationMin:     r.route.DurationMin,
			MapsURL:         r.route.URL,
			Area:            r.driver.Area,
		}
	}
	return out, nil
}
