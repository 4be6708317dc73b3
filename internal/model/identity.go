package model

import "strings"

// Identity is one case-worker as known to the external authority.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// NormalizeEmail is the canonical form used for directory lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Principal is the authenticated caller attached to request context
// after token validation. Its entitlement is the snapshot frozen at
// login time, never the live directory.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	SessionID   string
	Entitlement Entitlement
}
