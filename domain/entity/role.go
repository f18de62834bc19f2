package entity

import "strings"

// Role determines which portal views a user may reach.
type Role string

const (
	RolePatient       Role = "PATIENT"
	RoleDoctor        Role = "DOCTOR"
	RoleHospitalAdmin Role = "HOSPITAL_ADMIN"
)

const (
	LoginPath   = "/login"
	ProfilePath = "/profile"
)

var dashboardPaths = map[Role]string{
	RolePatient:       "/patient-dashboard",
	RoleDoctor:        "/doctor-dashboard",
	RoleHospitalAdmin: "/admin-dashboard",
}

// ParseRole accepts any casing of a known role name.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	if role.IsValid() {
		return role, true
	}
	return "", false
}

func (r Role) IsValid() bool {
	_, ok := dashboardPaths[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// DashboardPath returns the default landing path for the role. Unknown or
// missing roles land on the generic profile page.
func DashboardPath(r Role) string {
	if path, ok := dashboardPaths[r]; ok {
		return path
	}
	return ProfilePath
}

// HasRole reports whether role is a member of allowed.
func HasRole(allowed []Role, role Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
