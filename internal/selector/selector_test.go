package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/mapadapter"
)

type staticDirectory struct {
	drivers []domain.User
}

func (d staticDirectory) OnlineDrivers(context.Context) ([]domain.User, error) {
	return d.drivers, nil
}

type noSchedule struct{}

func (noSchedule) WindowStartToday(context.Context, string, domain.Direction, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func driver(id string, lat, lon, rating float64) domain.User {
	return domain.User{ID: id, IsDriver: true, Online: true, LastSeen: time.Now(), AvgRatingDriver: rating, Latitude: lat, Longitude: lon, DriverLocationState: domain.LocationUnset}
}

func TestSelect_RanksByDuration(t *testing.T) {
	near := driver("d-near", 33.8935, 35.4810, 4.2)
	far := driver("d-far", 33.90, 35.55, 4.9)

	sel := New(staticDirectory{drivers: []domain.User{far, near}}, noSchedule{}, mapadapter.NewFake(), 4)

	in := Input{RiderLat: 33.8938, RiderLng: 35.4850}
	out, err := sel.Select(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "d-near", out[0].DriverID)
}

func TestSelect_NoDriversOnline(t *testing.T) {
	sel := New(staticDirectory{}, noSchedule{}, mapadapter.NewFake(), 4)
	out, err := sel.Select(context.Background(), Input{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSelect_GenderFilter(t *testing.T) {
	male := driver("d-male", 33.894, 35.481, 4.0)
	male.Gender = domain.Gender("male")
	female := driver("d-female", 33.894, 35.482, 4.0)
	female.Gender = domain.Gender("female")

	sel := New(staticDirectory{drivers: []domain.User{male, female}}, noSchedule{}, mapadapter.NewFake(), 4)

	in := Input{RiderLat: 33.8938, RiderLng: 35.4850, PreferredGender: domain.Gender("female")}
	out, err := sel.Select(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "d-female", out[0].DriverID)
}

func TestSelect_MinRatingFilter(t *testing.T) {
	low := driver("d-low", 33.894, 35.481, 2.0)
	high := driver("d-high", 33.894, 35.482, 4.5)
	sel := New(staticDirectory{drivers: []domain.User{low, high}}, noSchedule{}, mapadapter.NewFake(), 4)

	in := Input{RiderLat: 33.8938, RiderLng: 35.4850, MinRating: 3.0}
	out, err := sel.Select(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "d-high", out[0].DriverID)
}

func TestSelect_MapUnavailableDropsDriver(t *testing.T) {
	fake := mapadapter.NewFake()
	fake.Unavailable = true
	sel := New(staticDirectory{drivers: []domain.User{driver("d1", 0, 0, 5)}}, noSchedule{}, fake, 4)
	out, err := sel.Select(context.Background(), Input{})
	require.NoError(t, err)
	require.Empty(t, out) // MapUnavailable on a per-driver route() just drops that driver
}

func TestSelect_ScheduleWindowKeepsEarlyArrival(t *testing.T) {
	fake := mapadapter.NewFake()
	driverA := driver("d-a", 33.90, 35.49, 4.0) // ~0.8 km, under 2 min away at default speed
	sched := fixedSchedule{windowStart: time.Now().Add(40 * time.Minute), set: true}
	sel := New(staticDirectory{drivers: []domain.User{driverA}}, sched, fake, 4)

	destLat, destLng := 33.91, 35.50
	in := Input{
		RiderLat: 33.8938, RiderLng: 35.4850,
		Direction:      domain.DirectionToCampus,
		DestinationLat: &destLat, DestinationLng: &destLng,
		RequestedTime: time.Now(),
	}
	out, err := sel.Select(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1) // arrival ~6 min out, well before the window start at +40 min
}

type fixedSchedule struct {
	windowStart time.Time
	set         bool
}

func (f fixedSchedule) WindowStartToday(context.Context, string, domain.Direction, time.Time) (time.Time, bool, error) {
	return f.windowStart, f.set, nil
}
