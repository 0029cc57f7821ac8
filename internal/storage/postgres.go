package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/schedule"
)

// Postgres is the RideRequest-facing repository: it persists requests,
// their candidate queues, users/sessions and rides. Kept close to the
// teacher's Postgres type (plain *pgxpool.Pool wrapper, raw SQL, no ORM)
// but retargeted at the ride-request domain instead of ride dispatch.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies schema.sql if it has not already been applied.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return ApplySchema(ctx, pool)
}

func DefaultPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Ping satisfies httpapi.Pinger for the /ready ops endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// --- users ---

func (p *Postgres) SaveUser(ctx context.Context, u domain.User) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (id, username, name, gender, is_driver, area, latitude, longitude,
	avg_rating_driver, rating_driver_count, avg_rating_rider, rating_rider_count,
	completed_rides, driver_location_state, online, last_seen)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	gender = EXCLUDED.gender,
	is_driver = EXCLUDED.is_driver,
	area = EXCLUDED.area,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	driver_location_state = EXCLUDED.driver_location_state,
	online = EXCLUDED.online,
	last_seen = EXCLUDED.last_seen
`, u.ID, u.Username, u.Name, u.Gender, u.IsDriver, u.Area, u.Latitude, u.Longitude,
		u.AvgRatingDriver, u.RatingDriverCount, u.AvgRatingRider, u.RatingRiderCount,
		u.CompletedRides, u.DriverLocationState, u.Online, u.LastSeen)
	return err
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Gender, &u.IsDriver, &u.Area, &u.Latitude, &u.Longitude,
		&u.AvgRatingDriver, &u.RatingDriverCount, &u.AvgRatingRider, &u.RatingRiderCount,
		&u.CompletedRides, &u.DriverLocationState, &u.Online, &u.LastSeen)
	return u, err
}

const userColumns = `id, username, name, gender, is_driver, area, latitude, longitude,
	avg_rating_driver, rating_driver_count, avg_rating_rider, rating_rider_count,
	completed_rides, driver_location_state, online, last_seen`

func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return u, true, nil
}

// OnlineDrivers implements selector.DriverDirectory.
func (p *Postgres) OnlineDrivers(ctx context.Context) ([]domain.User, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_driver = true AND online = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) SetDriverLocation(ctx context.Context, driverID string, lat, lng float64, state domain.LocationState, online bool) error {
	_, err := p.pool.Exec(ctx, `
UPDATE users SET latitude = $2, longitude = $3, driver_location_state = $4, online = $5, last_seen = now()
WHERE id = $1
`, driverID, lat, lng, state, online)
	return err
}

// UpdateDriverRating applies the §4.3.g running-average fold to a driver's
// avg_rating_driver. Never retried: the UPDATE either lands once or not at
// all.
func (p *Postgres) UpdateDriverRating(ctx context.Context, driverID string, stars float64) error {
	_, err := p.pool.Exec(ctx, `
UPDATE users
SET avg_rating_driver = (avg_rating_driver * rating_driver_count + $2) / (rating_driver_count + 1),
    rating_driver_count = rating_driver_count + 1
WHERE id = $1
`, driverID, stars)
	return err
}

// UpdateRiderRating is the symmetric fold for avg_rating_rider.
func (p *Postgres) UpdateRiderRating(ctx context.Context, riderID string, stars float64) error {
	_, err := p.pool.Exec(ctx, `
UPDATE users
SET avg_rating_rider = (avg_rating_rider * rating_rider_count + $2) / (rating_rider_count + 1),
    rating_rider_count = rating_rider_count + 1
WHERE id = $1
`, riderID, stars)
	return err
}

// --- driver schedules ---

func (p *Postgres) UpsertDriverDay(ctx context.Context, driverID, weekday string, departureS, returnS *int) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO driver_schedules (driver_id, weekday, departure_s, return_s)
VALUES ($1,$2,$3,$4)
ON CONFLICT (driver_id, weekday) DO UPDATE SET departure_s = EXCLUDED.departure_s, return_s = EXCLUDED.return_s
`, driverID, weekday, departureS, returnS)
	return err
}

// GetDriverDay implements schedule.Source.
func (p *Postgres) GetDriverDay(ctx context.Context, driverID, weekday string) (schedule.Day, error) {
	var departureS, returnS *int
	err := p.pool.QueryRow(ctx, `
SELECT departure_s, return_s FROM driver_schedules WHERE driver_id = $1 AND weekday = $2
`, driverID, weekday).Scan(&departureS, &returnS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.Day{}, nil
		}
		return schedule.Day{}, err
	}
	if departureS == nil || returnS == nil {
		return schedule.Day{}, nil
	}
	return schedule.NewDay(time.Duration(*departureS)*time.Second, time.Duration(*returnS)*time.Second), nil
}

// --- sessions ---

func (p *Postgres) SaveSession(ctx context.Context, token, userID, ip string, port int, ttl time.Duration) error {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO sessions (token, user_id, ip, port, last_seen, expires_at)
VALUES ($1,$2,$3,$4,now(),$5)
ON CONFLICT (token) DO UPDATE SET ip = EXCLUDED.ip, port = EXCLUDED.port, last_seen = now(), expires_at = EXCLUDED.expires_at
`, token, userID, ip, port, expires)
	return err
}

func (p *Postgres) ResolveSession(ctx context.Context, token string) (userID string, ok bool, err error) {
	var expires *time.Time
	err = p.pool.QueryRow(ctx, `SELECT user_id, expires_at FROM sessions WHERE token = $1`, token).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if expires != nil && expires.Before(time.Now()) {
		return "", false, nil
	}
	return userID, true, nil
}

// --- ride requests ---

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanRideRequest(row pgx.Row) (domain.RideRequest, error) {
	var r domain.RideRequest
	var pickupLat, pickupLng, destLat, destLng *float64
	var currentDriverID, currentDriverToken *string
	var lastDriverResponse *time.Time
	var rideID *int64
	var snapshot []byte

	err := row.Scan(
		&r.RequestID, &r.RiderID, &r.RiderSessionToken, &r.Pickup.AreaLabel, &pickupLat, &pickupLng,
		&r.Destination.Label, &r.Destination.IsCampus, &destLat, &destLng,
		&r.Direction, &r.RequestedTime, &r.MinRating, &r.PreferredGender, &r.Status,
		&r.CurrentCandidateSequence, &currentDriverID, &currentDriverToken,
		&snapshot, &r.Message, &rideID, &r.CreatedAt, &r.UpdatedAt, &lastDriverResponse,
	)
	if err != nil {
		return domain.RideRequest{}, err
	}
	r.Pickup.Latitude, r.Pickup.Longitude = pickupLat, pickupLng
	r.Destination.Latitude, r.Destination.Longitude = destLat, destLng
	if currentDriverID != nil {
		r.CurrentDriverID = *currentDriverID
	}
	if currentDriverToken != nil {
		r.CurrentDriverSessionToken = *currentDriverToken
	}
	if rideID != nil {
		r.RideID = *rideID
	}
	if lastDriverResponse != nil {
		r.LastDriverResponseAt = *lastDriverResponse
	}
	_ = json.Unmarshal(snapshot, &r.RiderSnapshot)
	return r, nil
}

const rideRequestColumns = `request_id, rider_id, rider_session_token, pickup_area, pickup_lat, pickup_lng,
	destination_label, destination_is_campus, destination_lat, destination_lng,
	direction, requested_time, min_rating, preferred_gender, status,
	current_candidate_sequence, current_driver_id, current_driver_session_token,
	rider_snapshot, message, ride_id, created_at, updated_at, last_driver_response_at`

// GetRideRequestForUpdateTx locks the request row for the duration of the
// caller's transaction, serializing all §4.3 operations per request (§5).
func GetRideRequestForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (domain.RideRequest, error) {
	r, err := scanRideRequest(tx.QueryRow(ctx, `SELECT `+rideRequestColumns+` FROM ride_requests WHERE request_id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequest{}, domain.ErrNotFound
		}
		return domain.RideRequest{}, err
	}
	return r, nil
}

func (p *Postgres) GetRideRequest(ctx context.Context, id int64) (domain.RideRequest, error) {
	r, err := scanRideRequest(p.pool.QueryRow(ctx, `SELECT `+rideRequestColumns+` FROM ride_requests WHERE request_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequest{}, domain.ErrNotFound
		}
		return domain.RideRequest{}, err
	}
	return r, nil
}

// GetActiveRequestForRider implements the I5 check: at most one non-terminal
// request per rider.
func (p *Postgres) GetActiveRequestForRider(ctx context.Context, riderID string) (domain.RideRequest, bool, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
SELECT request_id FROM ride_requests
WHERE rider_id = $1 AND status NOT IN ('COMPLETED','EXHAUSTED','CANCELED')
ORDER BY created_at DESC LIMIT 1
`, riderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequest{}, false, nil
		}
		return domain.RideRequest{}, false, err
	}
	req, err := p.GetRideRequest(ctx, id)
	return req, true, err
}

// GetLatestRequestForRider implements RiderStatus (§4.3.f): most recent
// request regardless of terminal state.
func (p *Postgres) GetLatestRequestForRider(ctx context.Context, riderID string) (domain.RideRequest, bool, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
SELECT request_id FROM ride_requests WHERE rider_id = $1 ORDER BY created_at DESC LIMIT 1
`, riderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequest{}, false, nil
		}
		return domain.RideRequest{}, false, err
	}
	req, err := p.GetRideRequest(ctx, id)
	return req, true, err
}

func UpdateRideRequestTx(ctx context.Context, tx pgx.Tx, r domain.RideRequest) error {
	var rideID *int64
	if r.RideID != 0 {
		rideID = &r.RideID
	}
	var lastDriverResponse *time.Time
	if !r.LastDriverResponseAt.IsZero() {
		lastDriverResponse = &r.LastDriverResponseAt
	}
	_, err := tx.Exec(ctx, `
UPDATE ride_requests
SET status = $2, current_candidate_sequence = $3, current_driver_id = $4, current_driver_session_token = $5,
    message = $6, ride_id = $7, last_driver_response_at = $8, updated_at = now()
WHERE request_id = $1
`, r.RequestID, r.Status, r.CurrentCandidateSequence, nullableString(r.CurrentDriverID), nullableString(r.CurrentDriverSessionToken),
		r.Message, rideID, lastDriverResponse)
	return err
}

// ListPendingExpired finds candidates stuck in PENDING past T_pending, for
// the §4.3.h sweeper.
func (p *Postgres) ListPendingExpired(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
SELECT request_id FROM ride_request_candidates
WHERE status = 'PENDING' AND assigned_at IS NOT NULL AND assigned_at <= $1
`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInt64Column(rows)
}

// ListAwaitingRiderExpired finds requests whose accepted driver has sat
// beyond T_confirm without a rider confirm/cancel.
func (p *Postgres) ListAwaitingRiderExpired(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
SELECT request_id FROM ride_requests
WHERE status = 'AWAITING_RIDER' AND last_driver_response_at IS NOT NULL AND last_driver_response_at <= $1
`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInt64Column(rows)
}

func scanInt64Column(rows pgx.Rows) ([]int64, error) {
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- candidates ---

func InsertCandidateTx(ctx context.Context, tx pgx.Tx, c domain.RideRequestCandidate) error {
	var assignedAt, respondedAt *time.Time
	if !c.AssignedAt.IsZero() {
		assignedAt = &c.AssignedAt
	}
	if !c.RespondedAt.IsZero() {
		respondedAt = &c.RespondedAt
	}
	_, err := tx.Exec(ctx, `
INSERT INTO ride_request_candidates
	(request_id, sequence, driver_id, driver_session_token, name, username, rating, completed_rides, area,
	 duration_min, distance_km, maps_url, status, assigned_at, responded_at, message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`, c.RequestID, c.Sequence, c.DriverID, c.DriverSessionToken, c.Name, c.Username, c.Rating, c.CompletedRides, c.Area,
		c.DurationMin, c.DistanceKM, c.MapsURL, c.Status, assignedAt, respondedAt, c.Message)
	return err
}

func scanCandidate(row pgx.Row) (domain.RideRequestCandidate, error) {
	var c domain.RideRequestCandidate
	var assignedAt, respondedAt *time.Time
	err := row.Scan(&c.CandidateID, &c.RequestID, &c.Sequence, &c.DriverID, &c.DriverSessionToken,
		&c.Name, &c.Username, &c.Rating, &c.CompletedRides, &c.Area,
		&c.DurationMin, &c.DistanceKM, &c.MapsURL, &c.Status, &assignedAt, &respondedAt, &c.Message)
	if err != nil {
		return domain.RideRequestCandidate{}, err
	}
	if assignedAt != nil {
		c.AssignedAt = *assignedAt
	}
	if respondedAt != nil {
		c.RespondedAt = *respondedAt
	}
	return c, nil
}

const candidateColumns = `candidate_id, request_id, sequence, driver_id, driver_session_token,
	name, username, rating, completed_rides, area,
	duration_min, distance_km, maps_url, status, assigned_at, responded_at, message`

func ListCandidatesTx(ctx context.Context, tx pgx.Tx, requestID int64) ([]domain.RideRequestCandidate, error) {
	rows, err := tx.Query(ctx, `SELECT `+candidateColumns+` FROM ride_request_candidates WHERE request_id = $1 ORDER BY sequence ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RideRequestCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func GetCandidateBySequenceTx(ctx context.Context, tx pgx.Tx, requestID int64, sequence int) (domain.RideRequestCandidate, error) {
	c, err := scanCandidate(tx.QueryRow(ctx, `SELECT `+candidateColumns+` FROM ride_request_candidates WHERE request_id = $1 AND sequence = $2`, requestID, sequence))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequestCandidate{}, domain.ErrNotFound
		}
		return domain.RideRequestCandidate{}, err
	}
	return c, nil
}

func GetCandidateByDriverTx(ctx context.Context, tx pgx.Tx, requestID int64, driverID string) (domain.RideRequestCandidate, error) {
	c, err := scanCandidate(tx.QueryRow(ctx, `SELECT `+candidateColumns+` FROM ride_request_candidates WHERE request_id = $1 AND driver_id = $2`, requestID, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequestCandidate{}, domain.ErrNotFound
		}
		return domain.RideRequestCandidate{}, err
	}
	return c, nil
}

func UpdateCandidateTx(ctx context.Context, tx pgx.Tx, c domain.RideRequestCandidate) error {
	var assignedAt, respondedAt *time.Time
	if !c.AssignedAt.IsZero() {
		assignedAt = &c.AssignedAt
	}
	if !c.RespondedAt.IsZero() {
		respondedAt = &c.RespondedAt
	}
	_, err := tx.Exec(ctx, `
UPDATE ride_request_candidates
SET status = $2, assigned_at = $3, responded_at = $4, message = $5, maps_url = $6
WHERE candidate_id = $1
`, c.CandidateID, c.Status, assignedAt, respondedAt, c.Message, c.MapsURL)
	return err
}

func (p *Postgres) GetCandidateBySequence(ctx context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error) {
	c, err := scanCandidate(p.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM ride_request_candidates WHERE request_id = $1 AND sequence = $2`, requestID, sequence))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RideRequestCandidate{}, domain.ErrNotFound
		}
		return domain.RideRequestCandidate{}, err
	}
	return c, nil
}

// PendingDriverQueue implements §4.3.b's "pending" list: candidate.status
// PENDING joined with request.status DRIVER_PENDING, ordered by
// assigned_at ASC NULLS LAST, request_id DESC (§5 ordering guarantee).
func (p *Postgres) PendingDriverQueue(ctx context.Context, driverID string) ([]domain.RideRequestCandidate, error) {
	rows, err := p.pool.Query(ctx, `
SELECT c.candidate_id, c.request_id, c.sequence, c.driver_id, c.driver_session_token,
	c.name, c.username, c.rating, c.completed_rides, c.area,
	c.duration_min, c.distance_km, c.maps_url, c.status, c.assigned_at, c.responded_at, c.message
FROM ride_request_candidates c
JOIN ride_requests r ON r.request_id = c.request_id
WHERE c.driver_id = $1 AND c.status = 'PENDING' AND r.status = 'DRIVER_PENDING'
ORDER BY c.assigned_at ASC NULLS LAST, c.request_id DESC
`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RideRequestCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveDriverQueue implements §4.3.b's "active" list: candidate.status in
// {ACCEPTED, SKIPPED} and request.status in {AWAITING_RIDER, COMPLETED},
// excluding requests whose linked ride is already COMPLETE.
func (p *Postgres) ActiveDriverQueue(ctx context.Context, driverID string) ([]domain.RideRequestCandidate, error) {
	rows, err := p.pool.Query(ctx, `
SELECT c.candidate_id, c.request_id, c.sequence, c.driver_id, c.driver_session_token,
	c.name, c.username, c.rating, c.completed_rides, c.area,
	c.duration_min, c.distance_km, c.maps_url, c.status, c.assigned_at, c.responded_at, c.message
FROM ride_request_candidates c
JOIN ride_requests r ON r.request_id = c.request_id
LEFT JOIN rides rd ON rd.ride_id = r.ride_id
WHERE c.driver_id = $1 AND c.status IN ('ACCEPTED','SKIPPED') AND r.status IN ('AWAITING_RIDER','COMPLETED')
  AND (rd.ride_id IS NULL OR rd.status <> 'COMPLETE')
ORDER BY c.assigned_at ASC NULLS LAST, c.request_id DESC
`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RideRequestCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- rides ---

func CreateRideTx(ctx context.Context, tx pgx.Tx, r domain.Ride) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
INSERT INTO rides (rider_id, driver_id, pickup_area, destination, requested_time, status, rider_session_token, driver_session_token, accepted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
RETURNING ride_id
`, r.RiderID, r.DriverID, r.PickupArea, r.Destination, r.RequestedTime, r.Status, r.RiderSessionToken, r.DriverSessionToken).Scan(&id)
	return id, err
}

func UpdateRideStatusTx(ctx context.Context, tx pgx.Tx, rideID int64, status domain.RideStatus) error {
	_, err := tx.Exec(ctx, `UPDATE rides SET status = $2 WHERE ride_id = $1`, rideID, status)
	return err
}

func (p *Postgres) GetRide(ctx context.Context, rideID int64) (domain.Ride, bool, error) {
	var r domain.Ride
	err := p.pool.QueryRow(ctx, `
SELECT ride_id, rider_id, driver_id, pickup_area, destination, requested_time, status, rider_session_token, driver_session_token, accepted_at
FROM rides WHERE ride_id = $1
`, rideID).Scan(&r.RideID, &r.RiderID, &r.DriverID, &r.PickupArea, &r.Destination, &r.RequestedTime, &r.Status, &r.RiderSessionToken, &r.DriverSessionToken, &r.AcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ride{}, false, nil
		}
		return domain.Ride{}, false, err
	}
	return r, true, nil
}

// TxStore scopes the request/candidate/ride writes that must commit
// together to one transaction, the way the teacher's RideTransaction
// interface scopes CreateRideWithEvent/UpdateRideWithEvent. The orchestrator
// depends on this interface, not on *Postgres, so its critical sections are
// mockable in tests.
type TxStore interface {
	GetRideRequestForUpdate(ctx context.Context, id int64) (domain.RideRequest, error)
	CreateRideRequest(ctx context.Context, req domain.RideRequest) (domain.RideRequest, error)
	UpdateRideRequest(ctx context.Context, r domain.RideRequest) error
	InsertCandidate(ctx context.Context, c domain.RideRequestCandidate) error
	ListCandidates(ctx context.Context, requestID int64) ([]domain.RideRequestCandidate, error)
	GetCandidateBySequence(ctx context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error)
	GetCandidateByDriver(ctx context.Context, requestID int64, driverID string) (domain.RideRequestCandidate, error)
	UpdateCandidate(ctx context.Context, c domain.RideRequestCandidate) error
	CreateRide(ctx context.Context, r domain.Ride) (int64, error)
	UpdateRideStatus(ctx context.Context, rideID int64, status domain.RideStatus) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// pgxTxStore implements TxStore over a live pgx.Tx.
type pgxTxStore struct {
	tx pgx.Tx
}

func (t *pgxTxStore) GetRideRequestForUpdate(ctx context.Context, id int64) (domain.RideRequest, error) {
	return GetRideRequestForUpdateTx(ctx, t.tx, id)
}

func (t *pgxTxStore) CreateRideRequest(ctx context.Context, req domain.RideRequest) (domain.RideRequest, error) {
	snapshot, err := json.Marshal(req.RiderSnapshot)
	if err != nil {
		return domain.RideRequest{}, err
	}
	err = t.tx.QueryRow(ctx, `
INSERT INTO ride_requests
	(rider_id, rider_session_token, pickup_area, pickup_lat, pickup_lng,
	 destination_label, destination_is_campus, destination_lat, destination_lng,
	 direction, requested_time, min_rating, preferred_gender, status,
	 current_candidate_sequence, current_driver_id, current_driver_session_token,
	 rider_snapshot, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
RETURNING request_id, created_at, updated_at
`,
		req.RiderID, req.RiderSessionToken, req.Pickup.AreaLabel, req.Pickup.Latitude, req.Pickup.Longitude,
		req.Destination.Label, req.Destination.IsCampus, req.Destination.Latitude, req.Destination.Longitude,
		req.Direction, req.RequestedTime, req.MinRating, req.PreferredGender, req.Status,
		req.CurrentCandidateSequence, nullableString(req.CurrentDriverID), nullableString(req.CurrentDriverSessionToken),
		snapshot,
	).Scan(&req.RequestID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "idx_ride_requests_one_active_per_rider" {
			return domain.RideRequest{}, domain.ErrRequestInFlight
		}
		return domain.RideRequest{}, err
	}
	return req, nil
}

func (t *pgxTxStore) UpdateRideRequest(ctx context.Context, r domain.RideRequest) error {
	return UpdateRideRequestTx(ctx, t.tx, r)
}

func (t *pgxTxStore) InsertCandidate(ctx context.Context, c domain.RideRequestCandidate) error {
	return InsertCandidateTx(ctx, t.tx, c)
}

func (t *pgxTxStore) ListCandidates(ctx context.Context, requestID int64) ([]domain.RideRequestCandidate, error) {
	return ListCandidatesTx(ctx, t.tx, requestID)
}

func (t *pgxTxStore) GetCandidateBySequence(ctx context.Context, requestID int64, sequence int) (domain.RideRequestCandidate, error) {
	return GetCandidateBySequenceTx(ctx, t.tx, requestID, sequence)
}

func (t *pgxTxStore) GetCandidateByDriver(ctx context.Context, requestID int64, driverID string) (domain.RideRequestCandidate, error) {
	return GetCandidateByDriverTx(ctx, t.tx, requestID, driverID)
}

func (t *pgxTxStore) UpdateCandidate(ctx context.Context, c domain.RideRequestCandidate) error {
	return UpdateCandidateTx(ctx, t.tx, c)
}

func (t *pgxTxStore) CreateRide(ctx context.Context, r domain.Ride) (int64, error) {
	return CreateRideTx(ctx, t.tx, r)
}

func (t *pgxTxStore) UpdateRideStatus(ctx context.Context, rideID int64, status domain.RideStatus) error {
	return UpdateRideStatusTx(ctx, t.tx, rideID, status)
}

func (t *pgxTxStore) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTxStore) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// BeginTx opens the transaction the orchestrator uses for every §4.3
// operation's critical section (§5 linearizability per request).
func (p *Postgres) BeginTx(ctx context.Context) (TxStore, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTxStore{tx: tx}, nil
}
