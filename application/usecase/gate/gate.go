// Package gate decides whether a view renders for an identity.
package gate

import "github.com/securemedai/portal/domain/entity"

type Kind int

const (
	// Placeholder means identity is still loading: render neither the view
	// nor a redirect.
	Placeholder Kind = iota
	Render
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Placeholder:
		return "placeholder"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Decision struct {
	Kind Kind
	Path string
}

// Decide gates a protected view. An empty allowedRoles admits any
// authenticated role.
func Decide(identity entity.IdentityState, allowedRoles []entity.Role) Decision {
	switch {
	case identity.Loading:
		return Decision{Kind: Placeholder}
	case !identity.IsAuthenticated:
		return Decision{Kind: Redirect, Path: entity.LoginPath}
	case len(allowedRoles) > 0 && !entity.HasRole(allowedRoles, identity.Role):
		return Decision{Kind: Redirect, Path: entity.DashboardPath(identity.Role)}
	default:
		return Decision{Kind: Render}
	}
}

// DecidePublicOnly gates views such as login and signup that a signed-in
// user must not revisit.
func DecidePublicOnly(identity entity.IdentityState) Decision {
	switch {
	case identity.Loading:
		return Decision{Kind: Placeholder}
	case identity.IsAuthenticated:
		return Decision{Kind: Redirect, Path: entity.DashboardPath(identity.Role)}
	default:
		return Decision{Kind: Render}
	}
}

// ForRule applies the decision matching the rule's access level.
func ForRule(identity entity.IdentityState, rule entity.RouteRule) Decision {
	switch rule.Access {
	case entity.AccessPublicOnly:
		return DecidePublicOnly(identity)
	case entity.AccessProtected:
		return Decide(identity, rule.AllowedRoles)
	default:
		return Decision{Kind: Render}
	}
}
