package domain

import "strings"

// Role of the caller as supplied by the auth collaborator
type Role string

const (
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

// Actor is the authenticated caller of a core operation
type Actor struct {
	Role   Role
	UserID string
	Email  string
}

// Guest returns the anonymous actor
func Guest() Actor {
	return Actor{Role: RoleGuest}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
func (a Actor) IsHost() bool  { return a.Role == RoleHost }

// Owns reports whether a host actor owns a record with the given host identity.
// Emails compare case-insensitively.
func (a Actor) Owns(hostID, hostEmail string) bool {
	if a.Role != RoleHost {
		return false
	}
	if a.UserID != "" && hostID != "" && a.UserID == hostID {
		return true
	}
	return a.Email != "" && strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(hostEmail))
}

// CanManage is true for admins and the owning host
func (a Actor) CanManage(hostID, hostEmail string) bool {
	return a.IsAdmin() || a.Owns(hostID, hostEmail)
}

// Label identifies the actor in history entries and audit fields
func (a Actor) Label() string {
	switch {
	case a.UserID != "":
		return string(a.Role) + ":" + a.UserID
	case a.Email != "":
		return string(a.Role) + ":" + a.Email
	default:
		return string(a.Role)
	}
}
