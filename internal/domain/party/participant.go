package party

import "time"

// Role distinguishes the single host from guests.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant represents one connected member of a party session.
// Exactly one participant per session holds RoleHost at any time.
type Participant struct {
	ID          string    // Opaque participant ID assigned at join
	DisplayName string    // Display name presented at join
	Role        Role      // host or guest
	ConnectedAt time.Time // Join time, used for host succession order
}

// IsHost reports whether the participant holds the host role.
func (p *Participant) IsHost() bool {
	return p.Role == RoleHost
}
