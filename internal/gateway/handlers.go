package gateway

import (
	"context"
	"encoding/json"

	"github.com/JawadKotaichh/aubus/internal/auth"
	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/orchestrator"
)

// LocationUpdater records a driver's self-reported position and online
// state. Satisfied by cmd/server's locationUpdater, which fans the update
// out to both Postgres and the proximity index.
type LocationUpdater interface {
	SetDriverLocation(ctx context.Context, driverID string, lat, lng float64, state domain.LocationState, online bool) error
}

// Gateway dispatches inbound frames onto the orchestrator. One Gateway is
// shared by every connection; it holds no per-connection state.
type Gateway struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *SessionResolver
	Locations    LocationUpdater
}

func New(o *orchestrator.Orchestrator, sessions *SessionResolver, locations LocationUpdater) *Gateway {
	return &Gateway{Orchestrator: o, Sessions: sessions, Locations: locations}
}

// Handle runs one request frame to completion and always returns a Response
// to write back, never an error: every failure mode is encoded in the
// response's Status/Payload.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	ident, ok := g.Sessions.Resolve(ctx, req.Token)
	if !ok {
		return errResponse(req.Type, StatusInvalidInput, "invalid or expired session token")
	}

	switch req.Type {
	case OpCreateRequest:
		return g.handleCreate(ctx, ident, req.Payload)
	case OpRiderStatus:
		return g.handleRiderStatus(ctx, ident)
	case OpRiderConfirm:
		return g.handleRiderConfirm(ctx, ident, req.Payload)
	case OpRiderCancel:
		return g.handleRiderCancel(ctx, ident, req.Payload)
	case OpDriverQueue:
		return g.handleDriverQueue(ctx, ident)
	case OpDriverDecision:
		return g.handleDriverDecision(ctx, ident, req.Payload)
	case OpRateDriver:
		return g.handleRateDriver(ctx, ident, req.Payload)
	case OpRateRider:
		return g.handleRateRider(ctx, ident, req.Payload)
	case OpDriverHeartbeat:
		return g.handleDriverHeartbeat(ctx, ident, req.Payload)
	default:
		return errResponse(req.Type, StatusInvalidInput, "unknown opcode")
	}
}

type createPayload struct {
	Pickup          domain.Pickup      `json:"pickup"`
	Destination     domain.Destination `json:"destination"`
	Direction       domain.Direction   `json:"direction"`
	RequestedTime   *jsonTime          `json:"requested_time"`
	MinRating       float64            `json:"min_rating"`
	PreferredGender domain.Gender      `json:"preferred_gender"`
	ZoneFilter      string             `json:"zone_filter"`
}

func (g *Gateway) handleCreate(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	if ident.Role != auth.RoleRider {
		return errResponse(OpCreateRequest, StatusInvalidInput, "only riders may create a ride request")
	}
	var p createPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse(OpCreateRequest, StatusInvalidInput, "malformed payload: "+err.Error())
	}
	requestedTime := timeOrNow(p.RequestedTime)

	req, candidates, err := g.Orchestrator.Create(ctx, orchestrator.CreateInput{
		RiderID:           ident.ID,
		RiderSessionToken: ident.Token,
		Pickup:            p.Pickup,
		Destination:       p.Destination,
		Direction:         p.Direction,
		RequestedTime:     requestedTime,
		MinRating:         p.MinRating,
		PreferredGender:   p.PreferredGender,
		ZoneFilter:        p.ZoneFilter,
	})
	if err != nil {
		return domainErrResponse(OpCreateRequest, err)
	}
	return okResponse(OpCreateRequest, map[string]interface{}{
		"request":    req,
		"candidates": candidates,
	})
}

func (g *Gateway) handleRiderStatus(ctx context.Context, ident auth.Identity) Response {
	req, candidate, ride, err := g.Orchestrator.RiderStatus(ctx, ident.ID)
	if err != nil {
		return domainErrResponse(OpRiderStatus, err)
	}
	return okResponse(OpRiderStatus, map[string]interface{}{
		"request":   req,
		"candidate": candidate,
		"ride":      ride,
	})
}

type requestIDPayload struct {
	RequestID int64 `json:"request_id"`
}

func (g *Gateway) handleRiderConfirm(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	var p requestIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse(OpRiderConfirm, StatusInvalidInput, "malformed payload: "+err.Error())
	}
	req, ride, err := g.Orchestrator.RiderConfirm(ctx, p.RequestID, ident.ID)
	if err != nil {
		return domainErrResponse(OpRiderConfirm, err)
	}
	return okResponse(OpRiderConfirm, map[string]interface{}{"request": req, "ride": ride})
}

func (g *Gateway) handleRiderCancel(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	var p requestIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse(OpRiderCancel, StatusInvalidInput, "malformed payload: "+err.Error())
	}
	req, err := g.Orchestrator.RiderCancel(ctx, p.RequestID, ident.ID)
	if err != nil {
		return domainErrResponse(OpRiderCancel, err)
	}
	return okResponse(OpRiderCancel, map[string]interface{}{"request": req})
}

func (g *Gateway) handleDriverQueue(ctx context.Context, ident auth.Identity) Response {
	if ident.Role != auth.RoleDriver {
		return errResponse(OpDriverQueue, StatusInvalidInput, "only drivers may poll a queue")
	}
	pending, active, err := g.Orchestrator.DriverQueue(ctx, ident.ID)
	if err != nil {
		return domainErrResponse(OpDriverQueue, err)
	}
	return okResponse(OpDriverQueue, map[string]interface{}{"pending": pending, "active": active})
}

type driverDecisionPayload struct {
	RequestID int64  `json:"request_id"`
	Accept    bool   `json:"accept"`
	Message   string `json:"message"`
}

func (g *Gateway) handleDriverDecision(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	if ident.Role != auth.RoleDriver {
		return errResponse(OpDriverDecision, StatusInvalidInput, "only drivers may answer an offer")
	}
	var p driverDecisionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse(OpDriverDecision, StatusInvalidInput, "malformed payload: "+err.Error())
	}
	req, err := g.Orchestrator.DriverDecision(ctx, ident.ID, p.RequestID, p.Accept, p.Message)
	if err != nil {
		return domainErrResponse(OpDriverDecision, err)
	}
	return okResponse(OpDriverDecision, map[string]interface{}{"request": req})
}

type ratePayload struct {
	DriverID string  `json:"driver_id"`
	RiderID  string  `json:"rider_id"`
	Stars    float64 `json:"stars"`
}

func (g *Gateway) handleRateDriver(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	var p ratePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.DriverID == "" {
		return errResponse(OpRateDriver, StatusInvalidInput, "malformed payload")
	}
	if err := g.Orchestrator.RateDriver(ctx, p.DriverID, p.Stars); err != nil {
		return domainErrResponse(OpRateDriver, err)
	}
	return okResponse(OpRateDriver, nil)
}

func (g *Gateway) handleRateRider(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	var p ratePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RiderID == "" {
		return errResponse(OpRateRider, StatusInvalidInput, "malformed payload")
	}
	if err := g.Orchestrator.RateRider(ctx, p.RiderID, p.Stars); err != nil {
		return domainErrResponse(OpRateRider, err)
	}
	return okResponse(OpRateRider, nil)
}

type heartbeatPayload struct {
	Latitude      float64              `json:"latitude"`
	Longitude     float64              `json:"longitude"`
	LocationState domain.LocationState `json:"location_state"`
	Online        bool                 `json:"online"`
}

func (g *Gateway) handleDriverHeartbeat(ctx context.Context, ident auth.Identity, raw json.RawMessage) Response {
	if ident.Role != auth.RoleDriver {
		return errResponse(OpDriverHeartbeat, StatusInvalidInput, "only drivers report location")
	}
	var p heartbeatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse(OpDriverHeartbeat, StatusInvalidInput, "malformed payload: "+err.Error())
	}
	if p.LocationState == "" {
		p.LocationState = domain.LocationUnset
	}
	if err := g.Locations.SetDriverLocation(ctx, ident.ID, p.Latitude, p.Longitude, p.LocationState, p.Online); err != nil {
		return domainErrResponse(OpDriverHeartbeat, err)
	}
	return okResponse(OpDriverHeartbeat, nil)
}

func okResponse(t Opcode, output interface{}) Response {
	return Response{Type: t, Status: StatusOK, Payload: outputPayload{Output: output}}
}

func errResponse(t Opcode, status Status, msg string) Response {
	return Response{Type: t, Status: status, Payload: outputPayload{Error: &msg}}
}

// domainErrResponse maps a *domain.Error onto the wire's two-code failure
// space: NotFound and NoDriversAvailable keep NOT_FOUND (§7), everything
// else collapses to InvalidInput since the wire protocol has no broader
// taxonomy (§6).
func domainErrResponse(t Opcode, err error) Response {
	status := StatusInvalidInput
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindNoDriversAvailable:
		status = StatusNotFound
	}
	return errResponse(t, status, err.Error())
}
