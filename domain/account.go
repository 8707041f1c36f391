package domain

// Role classifies a principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleClient  Role = "client"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleClient:
		return true
	}
	return false
}

// AdminStatus is the platform-level approval gate set by an admin.
// It applies to manager and client accounts; admin accounts carry none.
type AdminStatus string

const (
	AdminPending  AdminStatus = "pending"
	AdminApproved AdminStatus = "approved"
)

// LinkStatus is the manager-level linkage state of a client account.
type LinkStatus string

const (
	LinkNone     LinkStatus = ""
	LinkPending  LinkStatus = "pending"
	LinkApproved LinkStatus = "approved"
	LinkRejected LinkStatus = "rejected"
	LinkRemoved  LinkStatus = "removed"
)

// Account represents any principal: admin, manager or client.
type Account struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Role            Role        `json:"role"`
	AdminStatus     AdminStatus `json:"adminStatus,omitempty"`
	Status          LinkStatus  `json:"status,omitempty"`
	LinkedManagerID string      `json:"linkedManagerId,omitempty"`
	ManagerCode     string      `json:"managerCode,omitempty"`
	PhotoURL        string      `json:"photoUrl,omitempty"`
}

// GateApproved reports whether the admin-level gate permits a session.
// Accounts without an AdminStatus (admins themselves) always pass.
func (a Account) GateApproved() bool {
	return a.AdminStatus == "" || a.AdminStatus == AdminApproved
}

// ClientSummary is the lightweight view of a linked client kept per manager.
type ClientSummary struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Status LinkStatus `json:"status"`
}

// Principal is the resolved identity handed to visibility checks.
type Principal struct {
	ID              string `json:"id"`
	Role            Role   `json:"role"`
	LinkedManagerID string `json:"linkedManagerId,omitempty"`
	LinkStatus      LinkStatus
}
