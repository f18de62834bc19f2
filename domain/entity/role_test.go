package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"PATIENT", RolePatient, true},
		{"doctor", RoleDoctor, true},
		{" hospital_admin ", RoleHospitalAdmin, true},
		{"nurse", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestDashboardPath(t *testing.T) {
	assert.Equal(t, "/patient-dashboard", DashboardPath(RolePatient))
	assert.Equal(t, "/doctor-dashboard", DashboardPath(RoleDoctor))
	assert.Equal(t, "/admin-dashboard", DashboardPath(RoleHospitalAdmin))
	assert.Equal(t, ProfilePath, DashboardPath("NURSE"))
	assert.Equal(t, ProfilePath, DashboardPath(""))
}

func TestPortalRoutes(t *testing.T) {
	seen := map[string]bool{}
	for _, rule := range PortalRoutes {
		assert.False(t, seen[rule.Pattern], "duplicate route %s", rule.Pattern)
		seen[rule.Pattern] = true
		if rule.Access != AccessProtected {
			assert.Empty(t, rule.AllowedRoles, rule.Pattern)
		}
	}

	// Every dashboard is reachable by exactly its own role.
	for _, role := range []Role{RolePatient, RoleDoctor, RoleHospitalAdmin} {
		found := false
		for _, rule := range PortalRoutes {
			if rule.Pattern == DashboardPath(role) {
				found = true
				assert.Equal(t, []Role{role}, rule.AllowedRoles)
			}
		}
		assert.True(t, found, role)
	}
}
