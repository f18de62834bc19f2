package entity

// RouteAccess classifies how a view is gated.
type RouteAccess int

const (
	// AccessPublic views render for everyone.
	AccessPublic RouteAccess = iota
	// AccessPublicOnly views redirect signed-in users to their dashboard.
	AccessPublicOnly
	// AccessProtected views require an authenticated identity.
	AccessProtected
)

// RouteRule is static configuration; it is never mutated at runtime.
type RouteRule struct {
	Pattern      string
	View         string
	Access       RouteAccess
	AllowedRoles []Role
}

var adminOnly = []Role{RoleHospitalAdmin}

// PortalRoutes is the navigable view table of the portal.
var PortalRoutes = []RouteRule{
	{Pattern: "/", View: "home", Access: AccessPublic},
	{Pattern: "/contact", View: "contact", Access: AccessPublic},
	{Pattern: "/doctors", View: "doctors", Access: AccessPublic},

	{Pattern: LoginPath, View: "login", Access: AccessPublicOnly},
	{Pattern: "/signup", View: "signup", Access: AccessPublicOnly},

	{Pattern: ProfilePath, View: "profile", Access: AccessProtected},
	{Pattern: "/prediction", View: "prediction", Access: AccessProtected},
	{Pattern: "/patient-profile", View: "patient-profile", Access: AccessProtected},
	{Pattern: "/medical-history", View: "medical-history", Access: AccessProtected},
	{Pattern: "/appoint-history", View: "appoint-history", Access: AccessProtected},
	{Pattern: "/appointment", View: "appointment", Access: AccessProtected},

	{Pattern: "/patient-dashboard", View: "patient-dashboard", Access: AccessProtected, AllowedRoles: []Role{RolePatient}},
	{Pattern: "/doctor-dashboard", View: "doctor-dashboard", Access: AccessProtected, AllowedRoles: []Role{RoleDoctor}},
	{Pattern: "/admin-dashboard", View: "admin-dashboard", Access: AccessProtected, AllowedRoles: adminOnly},

	{Pattern: "/user-management", View: "user-management", Access: AccessProtected, AllowedRoles: adminOnly},
	{Pattern: "/doctor-approval", View: "doctor-approval", Access: AccessProtected, AllowedRoles: adminOnly},
	{Pattern: "/patient-approval", View: "patient-approval", Access: AccessProtected, AllowedRoles: adminOnly},
}
