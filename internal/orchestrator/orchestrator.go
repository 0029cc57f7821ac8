// Package orchestrator implements the Request Orchestrator: the state
// machine that turns a selector candidate list into a RideRequest with a
// fan-out queue, and drives it through driver responses, rider confirm or
// cancel, and timeout sweeps. Grounded on the teacher's dispatch.Store
// lock/validate/mutate/persist idiom, retargeted at Postgres transactions
// since linearizability here is per-request, not process-wide.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/mapadapter"
	"github.com/JawadKotaichh/aubus/internal/selector"
	"github.com/JawadKotaichh/aubus/internal/storage"
)

// DefaultFanoutWidth is K, the number of candidates held PENDING at once.
const DefaultFanoutWidth = 3

// DefaultPendingTimeout is T_pending: how long a driver has to answer a
// PENDING candidate before the sweeper treats it as an implicit reject.
const DefaultPendingTimeout = 60 * time.Second

// DefaultConfirmTimeout is T_confirm: how long a rider has to confirm or
// cancel an accepted candidate before it is revoked.
const DefaultConfirmTimeout = 120 * time.Second

// DefaultSweepInterval is T_sweep, the cadence of the single-worker sweep.
const DefaultSweepInterval = 10 * time.Second

// Store is the non-transactional read surface the orchestrator needs
// alongside storage.TxStore's transactional writes.
type Store interface {
	BeginTx(ctx context.Context) (storage.TxStore, error)
	GetActiveRequestForRider(ctx context.Context, riderID string) (domain.RideRequest, bool, error)
	GetLatestRequestForRider(ctx context.Context, riderID string) (domain.RideRequest, bool, error)
	GetRideRequest(ctx context.Context, id int64) (domain.RideRequest, error)
	GetUser(ctx context.Context, id string) (domain.User, bool, error)
	GetRide(ctx context.Context, rideID int64) (domain.Ride, bool, error)
	GetCandidateBySequence(ctx context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error)
	PendingDriverQueue(ctx context.Context, driverID string) ([]domain.RideRequestCandidate, error)
	ActiveDriverQueue(ctx context.Context, driverID string) ([]domain.RideRequestCandidate, error)
	UpdateDriverRating(ctx context.Context, driverID string, stars float64) error
	UpdateRiderRating(ctx context.Context, riderID string, stars float64) error
	ListPendingExpired(ctx context.Context, cutoff time.Time) ([]int64, error)
	ListAwaitingRiderExpired(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// EventSink receives a best-effort notification for every state transition,
// feeding the admin live feed and the AMQP publisher. A nil Events is fine:
// transitions never block on it.
type EventSink interface {
	Publish(ctx context.Context, evt domain.RideRequestEvent) error
}

// Orchestrator is the Request Orchestrator (§4.3).
type Orchestrator struct {
	Store     Store
	Selector  *selector.Selector
	Maps      mapadapter.Adapter
	Events    EventSink
	FanoutK   int
	Pending   time.Duration
	Confirm   time.Duration
	sweepOnce sync.Mutex
}

func New(store Store, sel *selector.Selector, maps mapadapter.Adapter, events EventSink) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Selector: sel,
		Maps:     maps,
		Events:   events,
		FanoutK:  DefaultFanoutWidth,
		Pending:  DefaultPendingTimeout,
		Confirm:  DefaultConfirmTimeout,
	}
}

func (o *Orchestrator) emit(ctx context.Context, requestID int64, typ domain.EventType, actorID, actorRole, detail string) {
	if o.Events == nil {
		return
	}
	_ = o.Events.Publish(ctx, domain.RideRequestEvent{
		RequestID: requestID,
		Type:      typ,
		ActorID:   actorID,
		ActorRole: actorRole,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
}

// CreateInput is the rider-supplied half of a new RideRequest.
type CreateInput struct {
	RiderID           string
	RiderSessionToken string
	Pickup            domain.Pickup
	Destination       domain.Destination
	Direction         domain.Direction
	RequestedTime     time.Time
	MinRating         float64
	PreferredGender   domain.Gender
	ZoneFilter        string
}

// Create runs the selector and, if it finds at least one online driver,
// persists a new RideRequest with its fan-out queue (§4.3.a). Per I5, a
// rider may have at most one non-terminal request; per the selector's
// failure semantics, an empty candidate list is NoDriversAvailable and
// nothing is persisted.
//
// The GetActiveRequestForRider check below is a pre-transaction fast path
// only: it lets a rider with an obviously-active request fail before the
// selector runs, but it cannot serialize two concurrent Create calls for
// the same rider. The authoritative I5 enforcement is the unique partial
// index on ride_requests(rider_id), backstopping this check inside
// CreateRideRequest's insert.
func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (domain.RideRequest, []domain.RideRequestCandidate, error) {
	if _, active, err := o.Store.GetActiveRequestForRider(ctx, in.RiderID); err != nil {
		return domain.RideRequest{}, nil, err
	} else if active {
		return domain.RideRequest{}, nil, domain.ErrRequestInFlight
	}

	rider, ok, err := o.Store.GetUser(ctx, in.RiderID)
	if err != nil {
		return domain.RideRequest{}, nil, err
	}
	if !ok {
		return domain.RideRequest{}, nil, domain.ErrNotFound
	}

	selIn := selector.Input{
		Direction:       in.Direction,
		RequestedTime:   in.RequestedTime,
		MinRating:       in.MinRating,
		PreferredGender: in.PreferredGender,
		ZoneFilter:      in.ZoneFilter,
	}
	if in.Pickup.Latitude != nil && in.Pickup.Longitude != nil {
		selIn.RiderLat, selIn.RiderLng = *in.Pickup.Latitude, *in.Pickup.Longitude
	}
	if in.Destination.Latitude != nil && in.Destination.Longitude != nil {
		selIn.DestinationLat, selIn.DestinationLng = in.Destination.Latitude, in.Destination.Longitude
	}

	candidates, err := o.Selector.Select(ctx, selIn)
	if err != nil {
		return domain.RideRequest{}, nil, err
	}
	if len(candidates) == 0 {
		return domain.RideRequest{}, nil, domain.ErrNoDrivers
	}

	k := o.FanoutK
	if k <= 0 {
		k = DefaultFanoutWidth
	}

	req := domain.RideRequest{
		RiderID:           in.RiderID,
		RiderSessionToken: in.RiderSessionToken,
		Pickup:            in.Pickup,
		Destination:       in.Destination,
		Direction:         in.Direction,
		RequestedTime:     in.RequestedTime,
		MinRating:         in.MinRating,
		PreferredGender:   in.PreferredGender,
		Status:            domain.StatusDriverPending,
		RiderSnapshot: domain.RiderSnapshot{
			Name:           rider.Name,
			Username:       rider.Username,
			Gender:         rider.Gender,
			AvgRatingRider: rider.AvgRatingRider,
			RidesCount:     rider.CompletedRides,
		},
	}

	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return domain.RideRequest{}, nil, err
	}
	defer tx.Rollback(ctx)

	req, err = tx.CreateRideRequest(ctx, req)
	if err != nil {
		return domain.RideRequest{}, nil, err
	}

	now := time.Now()
	rows := make([]domain.RideRequestCandidate, len(candidates))
	for i, c := range candidates {
		status := domain.CandidateWaiting
		var assignedAt time.Time
		if i < k {
			status = domain.CandidatePending
			assignedAt = now
		}
		rows[i] = domain.RideRequestCandidate{
			RequestID:          req.RequestID,
			Sequence:           i + 1,
			DriverID:           c.DriverID,
			DriverSessionToken: c.SessionToken,
			Name:               c.Name,
			Username:           c.Username,
			Rating:             c.AvgRatingDriver,
			CompletedRides:     c.CompletedRides,
			Area:               c.Area,
			DurationMin:        c.DurationMin,
			DistanceKM:         c.DistanceKM,
			MapsURL:            c.MapsURL,
			Status:             status,
			AssignedAt:         assignedAt,
		}
		if err := tx.InsertCandidate(ctx, rows[i]); err != nil {
			return domain.RideRequest{}, nil, err
		}
	}

	first := rows[0]
	req.CurrentCandidateSequence = first.Sequence
	req.CurrentDriverID = first.DriverID
	req.CurrentDriverSessionToken = first.DriverSessionToken
	req.LastDriverResponseAt = now
	if err := tx.UpdateRideRequest(ctx, req); err != nil {
		return domain.RideRequest{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RideRequest{}, nil, err
	}

	o.emit(ctx, req.RequestID, domain.EventCreated, in.RiderID, "rider", fmt.Sprintf("%d candidates", len(rows)))
	return req, rows, nil
}

// DriverQueue returns the pending offers awaiting this driver's decision and
// the requests already in progress with this driver (§4.3.b). The maps URL
// is only carried for entries whose request is COMPLETED.
func (o *Orchestrator) DriverQueue(ctx context.Context, driverID string) ([]domain.RideRequestCandidate, []domain.RideRequestCandidate, error) {
	pending, err := o.Store.PendingDriverQueue(ctx, driverID)
	if err != nil {
		return nil, nil, err
	}
	for i := range pending {
		pending[i].MapsURL = ""
	}
	active, err := o.Store.ActiveDriverQueue(ctx, driverID)
	if err != nil {
		return nil, nil, err
	}
	for i := range active {
		req, err := o.Store.GetRideRequest(ctx, active[i].RequestID)
		if err != nil {
			return nil, nil, err
		}
		if req.Status != domain.StatusCompleted {
			active[i].MapsURL = ""
		}
	}
	return pending, active, nil
}

// DriverDecision applies a driver's accept/reject to the candidate at its
// current sequence (§4.3.c). Acting on a candidate that is no longer
// PENDING — because another driver's decision or a timeout sweep already
// moved the request on — is a lost race and reports StaleAssignment
// (§4.3.c, P9/P10). Acting on a request the rider has already canceled
// reports InvalidState (§5).
func (o *Orchestrator) DriverDecision(ctx context.Context, driverID string, requestID int64, accept bool, message string) (domain.RideRequest, error) {
	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return domain.RideRequest{}, err
	}
	defer tx.Rollback(ctx)

	req, err := tx.GetRideRequestForUpdate(ctx, requestID)
	if err != nil {
		return domain.RideRequest{}, err
	}
	if req.Status == domain.StatusCanceled {
		return domain.RideRequest{}, domain.ErrInvalidState
	}
	if req.Status != domain.StatusDriverPending {
		return domain.RideRequest{}, domain.ErrStaleAssignment
	}

	candidate, err := tx.GetCandidateByDriver(ctx, requestID, driverID)
	if err != nil {
		return domain.RideRequest{}, err
	}
	if candidate.Status != domain.CandidatePending {
		return domain.RideRequest{}, domain.ErrStaleAssignment
	}

	now := time.Now()
	candidate.RespondedAt = now
	candidate.Message = message

	if accept {
		candidate.Status = domain.CandidateAccepted
		if err := tx.UpdateCandidate(ctx, candidate); err != nil {
			return domain.RideRequest{}, err
		}
		if err := skipOthers(ctx, tx, requestID, candidate.CandidateID); err != nil {
			return domain.RideRequest{}, err
		}
		req.Status = domain.StatusAwaitingRider
		req.CurrentCandidateSequence = candidate.Sequence
		req.CurrentDriverID = candidate.DriverID
		req.CurrentDriverSessionToken = candidate.DriverSessionToken
		req.LastDriverResponseAt = now
		req.Message = message
		if err := tx.UpdateRideRequest(ctx, req); err != nil {
			return domain.RideRequest{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.RideRequest{}, err
		}
		o.emit(ctx, requestID, domain.EventAccepted, driverID, "driver", message)
		return req, nil
	}

	candidate.Status = domain.CandidateRejected
	if err := tx.UpdateCandidate(ctx, candidate); err != nil {
		return domain.RideRequest{}, err
	}
	req, err = o.promote(ctx, tx, req, now)
	if err != nil {
		return domain.RideRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.RideRequest{}, err
	}
	o.emit(ctx, requestID, domain.EventRejected, driverID, "driver", message)
	return req, nil
}

// skipOthers moves every non-terminal candidate other than keep to SKIPPED,
// the cleanup step after one candidate is ACCEPTED (§4.3.c).
func skipOthers(ctx context.Context, tx storage.TxStore, requestID int64, keep int64) error {
	all, err := tx.ListCandidates(ctx, requestID)
	if err != nil {
		return err
	}
	for _, c := range all {
		if c.CandidateID == keep {
			continue
		}
		switch c.Status {
		case domain.CandidatePending, domain.CandidateWaiting, domain.CandidateRejected:
			c.Status = domain.CandidateSkipped
			if c.RespondedAt.IsZero() {
				c.RespondedAt = time.Now()
			}
			if err := tx.UpdateCandidate(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// promote fills PENDING back up to FanoutK by pulling the lowest-sequence
// WAITING candidates, then advances current_candidate_sequence to the
// lowest-sequence PENDING row, or marks the request EXHAUSTED if none
// remain (§4.3.c).
func (o *Orchestrator) promote(ctx context.Context, tx storage.TxStore, req domain.RideRequest, now time.Time) (domain.RideRequest, error) {
	all, err := tx.ListCandidates(ctx, req.RequestID)
	if err != nil {
		return domain.RideRequest{}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Sequence < all[j].Sequence })

	k := o.FanoutK
	if k <= 0 {
		k = DefaultFanoutWidth
	}
	pendingCount := 0
	for _, c := range all {
		if c.Status == domain.CandidatePending {
			pendingCount++
		}
	}
	for i := range all {
		if pendingCount >= k {
			break
		}
		if all[i].Status == domain.CandidateWaiting {
			all[i].Status = domain.CandidatePending
			all[i].AssignedAt = now
			if err := tx.UpdateCandidate(ctx, all[i]); err != nil {
				return domain.RideRequest{}, err
			}
			pendingCount++
		}
	}

	var next *domain.RideRequestCandidate
	for i := range all {
		if all[i].Status == domain.CandidatePending {
			next = &all[i]
			break
		}
	}
	if next == nil {
		req.Status = domain.StatusExhausted
		req.Message = "No drivers accepted your request."
		req.CurrentCandidateSequence = 0
		req.CurrentDriverID = ""
		req.CurrentDriverSessionToken = ""
	} else {
		req.Status = domain.StatusDriverPending
		req.CurrentCandidateSequence = next.Sequence
		req.CurrentDriverID = next.DriverID
		req.CurrentDriverSessionToken = next.DriverSessionToken
	}
	req.LastDriverResponseAt = now
	if err := tx.UpdateRideRequest(ctx, req); err != nil {
		return domain.RideRequest{}, err
	}
	if req.Status == domain.StatusExhausted {
		o.emit(ctx, req.RequestID, domain.EventExhausted, "", "", "")
	} else {
		o.emit(ctx, req.RequestID, domain.EventPromoted, "", "", "")
	}
	return req, nil
}

// RiderConfirm finalizes an accepted candidate into a Ride and moves the
// request to COMPLETED (§4.3.d). A Map Adapter timeout while building the
// confirmation link leaves the request in AWAITING_RIDER so the rider can
// retry (§5).
func (o *Orchestrator) RiderConfirm(ctx context.Context, requestID int64, riderID string) (domain.RideRequest, domain.Ride, error) {
	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}
	defer tx.Rollback(ctx)

	req, err := tx.GetRideRequestForUpdate(ctx, requestID)
	if err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}
	if req.RiderID != riderID {
		return domain.RideRequest{}, domain.Ride{}, domain.ErrNotFound
	}
	if req.Status != domain.StatusAwaitingRider {
		return domain.RideRequest{}, domain.Ride{}, domain.ErrInvalidState
	}

	candidate, err := tx.GetCandidateBySequence(ctx, requestID, req.CurrentCandidateSequence)
	if err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}

	mapsURL := candidate.MapsURL
	if req.Pickup.Latitude != nil && req.Pickup.Longitude != nil {
		driver, ok, err := o.Store.GetUser(ctx, candidate.DriverID)
		if err != nil {
			return domain.RideRequest{}, domain.Ride{}, err
		}
		if ok {
			origin := domain.Coordinate{Latitude: driver.Latitude, Longitude: driver.Longitude}
			pickup := domain.Coordinate{Latitude: *req.Pickup.Latitude, Longitude: *req.Pickup.Longitude}
			route, err := o.Maps.Route(ctx, origin, pickup)
			if err != nil {
				return domain.RideRequest{}, domain.Ride{}, err
			}
			mapsURL = route.URL
		}
	}

	ride := domain.Ride{
		RiderID:            req.RiderID,
		DriverID:           candidate.DriverID,
		PickupArea:         req.Pickup.AreaLabel,
		Destination:        req.Destination.Label,
		RequestedTime:      req.RequestedTime,
		Status:             domain.RideStatusPending,
		RiderSessionToken:  req.RiderSessionToken,
		DriverSessionToken: candidate.DriverSessionToken,
	}
	rideID, err := tx.CreateRide(ctx, ride)
	if err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}
	ride.RideID = rideID

	candidate.MapsURL = mapsURL
	if err := tx.UpdateCandidate(ctx, candidate); err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}

	req.Status = domain.StatusCompleted
	req.RideID = rideID
	req.Message = "Ride confirmed"
	if err := tx.UpdateRideRequest(ctx, req); err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RideRequest{}, domain.Ride{}, err
	}
	o.emit(ctx, requestID, domain.EventConfirmed, riderID, "rider", "")
	return req, ride, nil
}

// RiderCancel ends a non-terminal request at the rider's request (§4.3.e).
// An already-ACCEPTED candidate is left as-is; the linked Ride, if any, is
// canceled alongside it.
func (o *Orchestrator) RiderCancel(ctx context.Context, requestID int64, riderID string) (domain.RideRequest, error) {
	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return domain.RideRequest{}, err
	}
	defer tx.Rollback(ctx)

	req, err := tx.GetRideRequestForUpdate(ctx, requestID)
	if err != nil {
		return domain.RideRequest{}, err
	}
	if req.RiderID != riderID {
		return domain.RideRequest{}, domain.ErrNotFound
	}
	if req.Status.Terminal() {
		return domain.RideRequest{}, domain.ErrInvalidState
	}

	all, err := tx.ListCandidates(ctx, requestID)
	if err != nil {
		return domain.RideRequest{}, err
	}
	now := time.Now()
	for _, c := range all {
		switch c.Status {
		case domain.CandidatePending, domain.CandidateWaiting, domain.CandidateRejected:
			c.Status = domain.CandidateSkipped
			c.RespondedAt = now
			if err := tx.UpdateCandidate(ctx, c); err != nil {
				return domain.RideRequest{}, err
			}
		}
	}

	req.Status = domain.StatusCanceled
	if req.RideID != 0 {
		if err := tx.UpdateRideStatus(ctx, req.RideID, domain.RideStatusCanceled); err != nil {
			return domain.RideRequest{}, err
		}
	}
	if err := tx.UpdateRideRequest(ctx, req); err != nil {
		return domain.RideRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.RideRequest{}, err
	}
	o.emit(ctx, requestID, domain.EventCanceled, riderID, "rider", "")
	return req, nil
}

// RiderStatus reports a rider's most recent request, its current candidate
// if any, and the linked Ride once one exists (§4.3.f poll surface). The
// candidate's maps URL is only carried once the request is COMPLETED.
func (o *Orchestrator) RiderStatus(ctx context.Context, riderID string) (domain.RideRequest, *domain.RideRequestCandidate, *domain.Ride, error) {
	req, ok, err := o.Store.GetLatestRequestForRider(ctx, riderID)
	if err != nil {
		return domain.RideRequest{}, nil, nil, err
	}
	if !ok {
		return domain.RideRequest{}, nil, nil, domain.ErrNotFound
	}

	var candidate *domain.RideRequestCandidate
	if req.CurrentCandidateSequence > 0 {
		c, err := o.Store.GetCandidateBySequence(ctx, req.RequestID, req.CurrentCandidateSequence)
		if err == nil {
			if req.Status != domain.StatusCompleted {
				c.MapsURL = ""
			}
			candidate = &c
		}
	}

	var ride *domain.Ride
	if req.RideID != 0 {
		r, ok, err := o.Store.GetRide(ctx, req.RideID)
		if err != nil {
			return domain.RideRequest{}, nil, nil, err
		}
		if ok {
			ride = &r
		}
	}
	return req, candidate, ride, nil
}

// RateDriver folds one new rating into a driver's running average (§4.3.g,
// P7): avg' = (avg*count + r) / (count+1). Never retried.
func (o *Orchestrator) RateDriver(ctx context.Context, driverID string, stars float64) error {
	return o.Store.UpdateDriverRating(ctx, driverID, stars)
}

// RateRider is the symmetric fold against a rider's avg_rating_rider.
func (o *Orchestrator) RateRider(ctx context.Context, riderID string, stars float64) error {
	return o.Store.UpdateRiderRating(ctx, riderID, stars)
}

// SweepOnce runs one pass of the §4.3.h timeout sweep: PENDING candidates
// past T_pending are treated as an implicit reject-and-promote, and
// AWAITING_RIDER requests past T_confirm have their accepted candidate
// marked SKIPPED and run the same promotion step. Accepting already moved
// every other open candidate to SKIPPED, so a confirm timeout leaves nothing
// to promote and ends the request EXHAUSTED. TryLock refuses a second concurrent
// pass so overlapping timer fires never race each other.
func (o *Orchestrator) SweepOnce(ctx context.Context) error {
	if !o.sweepOnce.TryLock() {
		return nil
	}
	defer o.sweepOnce.Unlock()

	now := time.Now()
	if err := o.sweepPending(ctx, now); err != nil {
		return err
	}
	return o.sweepAwaitingRider(ctx, now)
}

func (o *Orchestrator) sweepPending(ctx context.Context, now time.Time) error {
	expired, err := o.Store.ListPendingExpired(ctx, now.Add(-o.pendingTimeout()))
	if err != nil {
		return err
	}
	for _, requestID := range expired {
		if err := o.sweepOnePending(ctx, requestID, now); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) sweepOnePending(ctx context.Context, requestID int64, now time.Time) error {
	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req, err := tx.GetRideRequestForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if req.Status != domain.StatusDriverPending {
		return nil
	}
	candidate, err := tx.GetCandidateBySequence(ctx, requestID, req.CurrentCandidateSequence)
	if err != nil {
		return nil
	}
	if candidate.Status != domain.CandidatePending || candidate.AssignedAt.IsZero() || now.Sub(candidate.AssignedAt) < o.pendingTimeout() {
		return nil
	}

	candidate.Status = domain.CandidateRejected
	candidate.RespondedAt = now
	candidate.Message = "timed out"
	if err := tx.UpdateCandidate(ctx, candidate); err != nil {
		return err
	}
	if _, err := o.promote(ctx, tx, req, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.emit(ctx, requestID, domain.EventExpired, candidate.DriverID, "driver", "pending timeout")
	return nil
}

func (o *Orchestrator) sweepAwaitingRider(ctx context.Context, now time.Time) error {
	expired, err := o.Store.ListAwaitingRiderExpired(ctx, now.Add(-o.confirmTimeout()))
	if err != nil {
		return err
	}
	for _, requestID := range expired {
		if err := o.sweepOneAwaitingRider(ctx, requestID, now); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) sweepOneAwaitingRider(ctx context.Context, requestID int64, now time.Time) error {
	tx, err := o.Store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req, err := tx.GetRideRequestForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if req.Status != domain.StatusAwaitingRider {
		return nil
	}
	if req.LastDriverResponseAt.IsZero() || now.Sub(req.LastDriverResponseAt) < o.confirmTimeout() {
		return nil
	}

	candidate, err := tx.GetCandidateBySequence(ctx, requestID, req.CurrentCandidateSequence)
	if err != nil {
		return nil
	}
	candidate.Status = domain.CandidateSkipped
	candidate.Message = "confirm timeout"
	if err := tx.UpdateCandidate(ctx, candidate); err != nil {
		return err
	}
	req.Status = domain.StatusDriverPending
	if _, err := o.promote(ctx, tx, req, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.emit(ctx, requestID, domain.EventExpired, candidate.DriverID, "driver", "confirm timeout")
	return nil
}

func (o *Orchestrator) pendingTimeout() time.Duration {
	if o.Pending <= 0 {
		return DefaultPendingTimeout
	}
	return o.Pending
}

func (o *Orchestrator) confirmTimeout() time.Duration {
	if o.Confirm <= 0 {
		return DefaultConfirmTimeout
	}
	return o.Confirm
}

// RunSweeper drives SweepOnce on a ticker until ctx is canceled, the single
// background loop cmd/server starts alongside the gateway.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = o.SweepOnce(ctx)
		}
	}
}
