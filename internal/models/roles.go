package models

// Role is the authenticated caller's role carried in the token claims.
type Role string

const (
	RoleSeeker       Role = "seeker"
	RolePractitioner Role = "practitioner"
	// RoleOperator is the separately authorized administrative capability
	// allowed to force-start a consultation before its entry window.
	RoleOperator Role = "operator"
)
