package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/mapadapter"
	"github.com/JawadKotaichh/aubus/internal/selector"
	"github.com/JawadKotaichh/aubus/internal/storage"
)

// fakeDB is an in-memory Store + storage.TxStore double: transactions write
// straight through (no staging), which is safe here because every test path
// only mutates after its staleness checks pass.
type fakeDB struct {
	mu         sync.Mutex
	requests   map[int64]domain.RideRequest
	candidates map[int64]domain.RideRequestCandidate
	rides      map[int64]domain.Ride
	users      map[string]domain.User
	nextReq    int64
	nextCand   int64
	nextRide   int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		requests:   make(map[int64]domain.RideRequest),
		candidates: make(map[int64]domain.RideRequestCandidate),
		rides:      make(map[int64]domain.Ride),
		users:      make(map[string]domain.User),
	}
}

func (f *fakeDB) BeginTx(context.Context) (storage.TxStore, error) { return &fakeTx{db: f}, nil }

func (f *fakeDB) GetActiveRequestForRider(_ context.Context, riderID string) (domain.RideRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.RiderID == riderID && !r.Status.Terminal() {
			return r, true, nil
		}
	}
	return domain.RideRequest{}, false, nil
}

func (f *fakeDB) GetLatestRequestForRider(_ context.Context, riderID string) (domain.RideRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best domain.RideRequest
	found := false
	for _, r := range f.requests {
		if r.RiderID == riderID && (!found || r.RequestID > best.RequestID) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (f *fakeDB) GetRideRequest(_ context.Context, id int64) (domain.RideRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return domain.RideRequest{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeDB) GetUser(_ context.Context, id string) (domain.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeDB) GetRide(_ context.Context, rideID int64) (domain.Ride, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[rideID]
	return r, ok, nil
}

func (f *fakeDB) GetCandidateBySequence(_ context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates {
		if c.RequestID == requestID && c.Sequence == sequence {
			return c, nil
		}
	}
	return domain.RideRequestCandidate{}, domain.ErrNotFound
}

func (f *fakeDB) PendingDriverQueue(_ context.Context, driverID string) ([]domain.RideRequestCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RideRequestCandidate
	for _, c := range f.candidates {
		if c.DriverID == driverID && c.Status == domain.CandidatePending {
			if req, ok := f.requests[c.RequestID]; ok && req.Status == domain.StatusDriverPending {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeDB) ActiveDriverQueue(_ context.Context, driverID string) ([]domain.RideRequestCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RideRequestCandidate
	for _, c := range f.candidates {
		if c.DriverID != driverID {
			continue
		}
		if c.Status != domain.CandidateAccepted && c.Status != domain.CandidateSkipped {
			continue
		}
		req, ok := f.requests[c.RequestID]
		if ok && (req.Status == domain.StatusAwaitingRider || req.Status == domain.StatusCompleted) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateDriverRating(_ context.Context, driverID string, stars float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[driverID]
	u.AvgRatingDriver = (u.AvgRatingDriver*float64(u.RatingDriverCount) + stars) / float64(u.RatingDriverCount+1)
	u.RatingDriverCount++
	f.users[driverID] = u
	return nil
}

func (f *fakeDB) UpdateRiderRating(_ context.Context, riderID string, stars float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[riderID]
	u.AvgRatingRider = (u.AvgRatingRider*float64(u.RatingRiderCount) + stars) / float64(u.RatingRiderCount+1)
	u.RatingRiderCount++
	f.users[riderID] = u
	return nil
}

func (f *fakeDB) ListPendingExpired(_ context.Context, cutoff time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, r := range f.requests {
		if r.Status != domain.StatusDriverPending {
			continue
		}
		for _, c := range f.candidates {
			if c.RequestID == r.RequestID && c.Sequence == r.CurrentCandidateSequence {
				if c.Status == domain.CandidatePending && !c.AssignedAt.IsZero() && !c.AssignedAt.After(cutoff) {
					out = append(out, r.RequestID)
				}
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDB) ListAwaitingRiderExpired(_ context.Context, cutoff time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, r := range f.requests {
		if r.Status == domain.StatusAwaitingRider && !r.LastDriverResponseAt.IsZero() && !r.LastDriverResponseAt.After(cutoff) {
			out = append(out, r.RequestID)
		}
	}
	return out, nil
}

type fakeTx struct{ db *fakeDB }

func (t *fakeTx) GetRideRequestForUpdate(ctx context.Context, id int64) (domain.RideRequest, error) {
	return t.db.GetRideRequest(ctx, id)
}

func (t *fakeTx) CreateRideRequest(_ context.Context, req domain.RideRequest) (domain.RideRequest, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.nextReq++
	req.RequestID = t.db.nextReq
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	t.db.requests[req.RequestID] = req
	return req, nil
}

func (t *fakeTx) UpdateRideRequest(_ context.Context, r domain.RideRequest) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	r.UpdatedAt = time.Now()
	t.db.requests[r.RequestID] = r
	return nil
}

func (t *fakeTx) InsertCandidate(_ context.Context, c domain.RideRequestCandidate) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.nextCand++
	c.CandidateID = t.db.nextCand
	t.db.candidates[c.CandidateID] = c
	return nil
}

func (t *fakeTx) ListCandidates(_ context.Context, requestID int64) ([]domain.RideRequestCandidate, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	var out []domain.RideRequestCandidate
	for _, c := range t.db.candidates {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *fakeTx) GetCandidateBySequence(ctx context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error) {
	return t.db.GetCandidateBySequence(ctx, requestID, sequence)
}

func (t *fakeTx) GetCandidateByDriver(_ context.Context, requestID int64, driverID string) (domain.RideRequestCandidate, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for _, c := range t.db.candidates {
		if c.RequestID == requestID && c.DriverID == driverID {
			return c, nil
		}
	}
	return domain.RideRequestCandidate{}, domain.ErrNotFound
}

func (t *fakeTx) UpdateCandidate(_ context.Context, c domain.RideRequestCandidate) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.candidates[c.CandidateID] = c
	return nil
}

func (t *fakeTx) CreateRide(_ context.Context, r domain.Ride) (int64, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.nextRide++
	r.RideID = t.db.nextRide
	t.db.rides[r.RideID] = r
	return r.RideID, nil
}

func (t *fakeTx) UpdateRideStatus(_ context.Context, rideID int64, status domain.RideStatus) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	r := t.db.rides[rideID]
	r.Status = status
	t.db.rides[rideID] = r
	return nil
}

func (t *fakeTx) Commit(context.Context) error   { return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type staticDirectory struct{ drivers []domain.User }

func (d staticDirectory) OnlineDrivers(context.Context) ([]domain.User, error) { return d.drivers, nil }

type noSchedule struct{}

func (noSchedule) WindowStartToday(context.Context, string, domain.Direction, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func newTestOrchestrator(db *fakeDB, drivers []domain.User) *Orchestrator {
	sel := selector.New(staticDirectory{drivers: drivers}, noSchedule{}, mapadapter.NewFake(), 4)
	return New(db, sel, mapadapter.NewFake(), nil)
}

func seedRider(db *fakeDB, id string) {
	db.users[id] = domain.User{ID: id, Username: id, Name: "Rider " + id, AvgRatingRider: 5}
}

func driverUser(id string, lat, lon, rating float64) domain.User {
	return domain.User{ID: id, IsDriver: true, Online: true, LastSeen: time.Now(), AvgRatingDriver: rating, Latitude: lat, Longitude: lon, DriverLocationState: domain.LocationUnset}
}

func TestCreate_BuildsFanoutQueue(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{
		driverUser("d1", 33.894, 35.481, 4.5),
		driverUser("d2", 33.895, 35.482, 4.0),
		driverUser("d3", 33.896, 35.483, 4.8),
		driverUser("d4", 33.897, 35.484, 4.2),
	}
	o := newTestOrchestrator(db, drivers)

	req, candidates, err := o.Create(context.Background(), CreateInput{
		RiderID: "rider-1", RiderSessionToken: "tok", RequestedTime: time.Now(),
		Pickup: domain.Pickup{AreaLabel: "hamra"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDriverPending, req.Status)
	require.Equal(t, 4, len(candidates))
	require.Equal(t, 1, req.CurrentCandidateSequence)

	pendingCount := 0
	for _, c := range candidates {
		if c.Status == domain.CandidatePending {
			pendingCount++
		}
	}
	require.Equal(t, DefaultFanoutWidth, pendingCount)
}

func TestCreate_NoDriversOnline(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	o := newTestOrchestrator(db, nil)

	_, _, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.Equal(t, domain.KindNoDriversAvailable, domain.KindOf(err))
}

func TestCreate_RejectsSecondInFlightRequest(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	o := newTestOrchestrator(db, []domain.User{driverUser("d1", 33.894, 35.481, 4.5)})

	_, _, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	_, _, err = o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.Equal(t, domain.KindRequestInFlight, domain.KindOf(err))
}

func TestDriverDecision_AcceptSkipsOthers(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{
		driverUser("d1", 33.894, 35.481, 4.5),
		driverUser("d2", 33.895, 35.482, 4.0),
	}
	o := newTestOrchestrator(db, drivers)
	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	winner := candidates[0]
	updated, err := o.DriverDecision(context.Background(), winner.DriverID, req.RequestID, true, "on my way")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingRider, updated.Status)
	require.Equal(t, winner.DriverID, updated.CurrentDriverID)

	all, _ := (&fakeTx{db: db}).ListCandidates(context.Background(), req.RequestID)
	for _, c := range all {
		if c.DriverID == winner.DriverID {
			require.Equal(t, domain.CandidateAccepted, c.Status)
		} else {
			require.Equal(t, domain.CandidateSkipped, c.Status)
		}
	}
}

func TestDriverDecision_RejectPromotesNext(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{
		driverUser("d1", 33.894, 35.481, 4.5),
		driverUser("d2", 33.895, 35.482, 4.0),
	}
	o := newTestOrchestrator(db, drivers)
	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	first := candidates[0]
	updated, err := o.DriverDecision(context.Background(), first.DriverID, req.RequestID, false, "busy")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDriverPending, updated.Status)
	require.NotEqual(t, first.DriverID, updated.CurrentDriverID)
}

func TestDriverDecision_StaleAssignmentOnRepeatAccept(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{driverUser("d1", 33.894, 35.481, 4.5)}
	o := newTestOrchestrator(db, drivers)
	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	winner := candidates[0]
	_, err = o.DriverDecision(context.Background(), winner.DriverID, req.RequestID, true, "")
	require.NoError(t, err)

	_, err = o.DriverDecision(context.Background(), winner.DriverID, req.RequestID, true, "")
	require.Equal(t, domain.KindStaleAssignment, domain.KindOf(err))
}

func TestRiderConfirm_CompletesRequest(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{driverUser("d1", 33.894, 35.481, 4.5)}
	o := newTestOrchestrator(db, drivers)
	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	_, err = o.DriverDecision(context.Background(), candidates[0].DriverID, req.RequestID, true, "")
	require.NoError(t, err)

	finalReq, ride, err := o.RiderConfirm(context.Background(), req.RequestID, "rider-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, finalReq.Status)
	require.Equal(t, ride.RideID, finalReq.RideID)
}

func TestRiderCancel_LeavesAcceptedCandidateAlone(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{
		driverUser("d1", 33.894, 35.481, 4.5),
		driverUser("d2", 33.895, 35.482, 4.0),
	}
	o := newTestOrchestrator(db, drivers)
	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	_, err = o.DriverDecision(context.Background(), candidates[0].DriverID, req.RequestID, true, "")
	require.NoError(t, err)

	canceled, err := o.RiderCancel(context.Background(), req.RequestID, "rider-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, canceled.Status)

	accepted, err := db.GetCandidateBySequence(context.Background(), req.RequestID, candidates[0].Sequence)
	require.NoError(t, err)
	require.Equal(t, domain.CandidateAccepted, accepted.Status)
}

func TestSweepOnce_PromotesTimedOutPending(t *testing.T) {
	db := newFakeDB()
	seedRider(db, "rider-1")
	drivers := []domain.User{
		driverUser("d1", 33.894, 35.481, 4.5),
		driverUser("d2", 33.895, 35.482, 4.0),
	}
	o := newTestOrchestrator(db, drivers)
	o.Pending = time.Millisecond

	req, candidates, err := o.Create(context.Background(), CreateInput{RiderID: "rider-1", RequestedTime: time.Now()})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, o.SweepOnce(context.Background()))

	updated, err := db.GetRideRequest(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.NotEqual(t, candidates[0].DriverID, updated.CurrentDriverID)
}
