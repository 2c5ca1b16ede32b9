package domain

import "strings"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleDonor Role = "donor"
)

// Actor is the authenticated caller, as resolved by the identity layer.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// System is the actor used for scheduler and webhook driven changes.
var System = Actor{UserID: "system", Role: RoleAdmin}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the donor record belongs to the actor.
func (a Actor) Owns(d Donor) bool {
	if d.UserID != "" && a.UserID != "" {
		return d.UserID == a.UserID
	}
	return a.Email != "" && strings.EqualFold(a.Email, d.Email)
}

// CanManage reports whether the actor may act on records owned by d.
func (a Actor) CanManage(d Donor) bool {
	return a.IsAdmin() || a.Owns(d)
}
