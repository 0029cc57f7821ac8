// Package domain holds the RideRequest aggregate and the types shared by
// every subsystem that operates on it: the selector, the orchestrator, the
// gateway and the storage layer.
package domain

import "time"

// Direction is the hint passed at Create that narrows which driver location
// state is compatible and whether schedule-arrival feasibility applies.
type Direction string

const (
	DirectionToCampus   Direction = "to_campus"
	DirectionFromCampus Direction = "from_campus"
	DirectionUnknown    Direction = "unknown"
)

// LocationState is a driver's self-reported position, used to filter
// candidates by direction.
type LocationState string

const (
	LocationHome    LocationState = "home"
	LocationCampus  LocationState = "campus"
	LocationUnset   LocationState = "unset"
)

// Gender is a plain string filter; empty means "no preference".
type Gender string

// Coordinate is a bare lat/lng pair, the unit the Map Adapter and geo index
// exchange.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Status is the RideRequest lifecycle state machine (§3, §4.3 table).
type Status string

const (
	StatusDriverPending Status = "DRIVER_PENDING"
	StatusAwaitingRider Status = "AWAITING_RIDER"
	StatusCompleted     Status = "COMPLETED"
	StatusExhausted     Status = "EXHAUSTED"
	StatusCanceled      Status = "CANCELED"
)

// Terminal reports whether s admits no further transitions (I3).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExhausted || s == StatusCanceled
}

// CandidateStatus is a RideRequestCandidate's position in the fan-out queue.
type CandidateStatus string

const (
	CandidateWaiting  CandidateStatus = "WAITING"
	CandidatePending  CandidateStatus = "PENDING"
	CandidateAccepted CandidateStatus = "ACCEPTED"
	CandidateRejected CandidateStatus = "REJECTED"
	CandidateSkipped  CandidateStatus = "SKIPPED"
)

// Pickup is the rider's requested pickup point: a named area plus an
// optional precise coordinate.
type Pickup struct {
	AreaLabel string   `json:"area_label"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Destination names the drop-off and flags whether it is the campus, which
// governs whether the selector checks schedule-arrival feasibility.
type Destination struct {
	Label     string   `json:"label"`
	IsCampus  bool     `json:"is_campus"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// RiderSnapshot is the rider's profile frozen at Create time, shown to
// candidate drivers.
type RiderSnapshot struct {
	Name          string  `json:"name"`
	Username      string  `json:"username"`
	Gender        Gender  `json:"gender"`
	AvgRatingRider float64 `json:"avg_rating_rider"`
	RidesCount    int64   `json:"rides_count"`
}

// RideRequest is the central aggregate: one automated ride-matching attempt
// for a rider.
type RideRequest struct {
	RequestID                 int64         `json:"request_id"`
	RiderID                   string        `json:"rider_id"`
	RiderSessionToken         string        `json:"rider_session_token"`
	Pickup                    Pickup        `json:"pickup"`
	Destination               Destination   `json:"destination"`
	Direction                 Direction     `json:"direction"`
	RequestedTime             time.Time     `json:"requested_time"`
	MinRating                 float64       `json:"min_rating"`
	PreferredGender           Gender        `json:"preferred_gender,omitempty"`
	Status                    Status        `json:"status"`
	CurrentCandidateSequence  int           `json:"current_candidate_sequence"`
	CurrentDriverID           string        `json:"current_driver_id,omitempty"`
	CurrentDriverSessionToken string        `json:"current_driver_session_token,omitempty"`
	RiderSnapshot             RiderSnapshot `json:"rider_snapshot"`
	Message                   string        `json:"message,omitempty"`
	RideID                    int64         `json:"ride_id,omitempty"`
	CreatedAt                 time.Time     `json:"created_at"`
	UpdatedAt                 time.Time     `json:"updated_at"`
	LastDriverResponseAt      time.Time     `json:"last_driver_response_at,omitempty"`
}

// RideRequestCandidate is one driver's slot in a RideRequest's fan-out
// queue, keyed by Sequence (1..N, unique and contiguous per request, I6).
type RideRequestCandidate struct {
	CandidateID        int64           `json:"candidate_id"`
	RequestID          int64           `json:"request_id"`
	Sequence           int             `json:"sequence"`
	DriverID           string          `json:"driver_id"`
	DriverSessionToken string          `json:"driver_session_token"`
	Name               string          `json:"name"`
	Username           string          `json:"username"`
	Rating             float64         `json:"rating"`
	CompletedRides     int64           `json:"completed_rides"`
	Area               string          `json:"area"`
	DurationMin        float64         `json:"duration_min"`
	DistanceKM         float64         `json:"distance_km"`
	MapsURL            string          `json:"maps_url,omitempty"`
	Status             CandidateStatus `json:"status"`
	AssignedAt         time.Time       `json:"assigned_at,omitempty"`
	RespondedAt        time.Time       `json:"responded_at,omitempty"`
	Message            string          `json:"message,omitempty"`
}

// RideStatus is the collaborator Ride's own status, distinct from
// RideRequest.Status.
type RideStatus string

const (
	RideStatusPending  RideStatus = "PENDING"
	RideStatusComplete RideStatus = "COMPLETE"
	RideStatusCanceled RideStatus = "CANCELED"
)

// Ride is the write-only collaborator sink the orchestrator emits into on
// RiderConfirm.
type Ride struct {
	RideID             int64      `json:"ride_id"`
	RiderID            string     `json:"rider_id"`
	DriverID           string     `json:"driver_id"`
	PickupArea         string     `json:"pickup_area"`
	Destination        string     `json:"destination"`
	RequestedTime      time.Time  `json:"requested_time"`
	Status             RideStatus `json:"status"`
	RiderSessionToken  string     `json:"rider_session_token"`
	DriverSessionToken string     `json:"driver_session_token"`
	AcceptedAt         time.Time  `json:"accepted_at"`
}

// User is the collaborator profile the selector reads candidate drivers
// from and the orchestrator reads rider snapshots from; read-only to the
// core except via the §4.3.g rating-update fold.
type User struct {
	ID               string        `json:"id"`
	Username         string        `json:"username"`
	Name             string        `json:"name"`
	Gender           Gender        `json:"gender"`
	IsDriver         bool          `json:"is_driver"`
	Area             string        `json:"area"`
	Latitude         float64       `json:"latitude"`
	Longitude        float64       `json:"longitude"`
	AvgRatingDriver  float64       `json:"avg_rating_driver"`
	RatingDriverCount int64        `json:"rating_driver_count"`
	AvgRatingRider   float64       `json:"avg_rating_rider"`
	RatingRiderCount  int64        `json:"rating_rider_count"`
	CompletedRides   int64         `json:"completed_rides"`
	DriverLocationState LocationState `json:"driver_location_state"`
	Online           bool          `json:"online"`
	LastSeen         time.Time     `json:"last_seen"`
}

// EventType names a RideRequest state transition recorded for audit and the
// admin live feed, an ambient addition beyond the two core aggregates.
type EventType string

const (
	EventCreated   EventType = "created"
	EventOffered   EventType = "offered"
	EventAccepted  EventType = "accepted"
	EventRejected  EventType = "rejected"
	EventPromoted  EventType = "promoted"
	EventConfirmed EventType = "confirmed"
	EventCanceled  EventType = "canceled"
	EventExpired   EventType = "expired"
	EventExhausted EventType = "exhausted"
)

// RideRequestEvent is an immutable append-only record of one transition.
type RideRequestEvent struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorRole string    `json:"actor_role,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
