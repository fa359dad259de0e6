package auth

import "strings"

// Role is the access level carried in a token's role claim. Viewers
// watch the alarm panels, operators may acknowledge alarms and edit
// rules, admins cover everything else.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole maps a claim string onto a known role. Leading and
// trailing space and letter case are forgiven; unknown roles are not.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants at least the required level.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}
