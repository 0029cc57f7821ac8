package auth

import "time"

// IdentityRole distinguishes the three actors that can dial the gateway:
// riders placing requests, drivers polling their queue, and ops staff on
// the admin feed.
type IdentityRole string

const (
	RoleRider  IdentityRole = "rider"
	RoleDriver IdentityRole = "driver"
	RoleAdmin  IdentityRole = "admin"
)

// Identity is a session credential: a bearer token bound to a user id and
// role, carried on every gateway frame per §4.4 (connections are stateless
// between frames; the token travels with each request).
type Identity struct {
	ID        string
	Role      IdentityRole
	Token     string
	ExpiresAt *time.Time
}
