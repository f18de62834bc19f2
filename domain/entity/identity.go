package entity

// Profile is the user object carried by an authenticated identity.
type Profile struct {
	DisplayName string                 `json:"display_name"`
	Email       string                 `json:"email,omitempty"`
	Role        Role                   `json:"role"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// IdentityState is a derived read view over the session store and the
// federated provider. It is never persisted.
type IdentityState struct {
	Loading         bool     `json:"loading"`
	IsAuthenticated bool     `json:"is_authenticated"`
	Role            Role     `json:"role,omitempty"`
	User            *Profile `json:"user,omitempty"`
}

func LoadingIdentity() IdentityState {
	return IdentityState{Loading: true}
}

func AuthenticatedIdentity(role Role, user *Profile) IdentityState {
	return IdentityState{
		IsAuthenticated: true,
		Role:            role,
		User:            user,
	}
}

func UnauthenticatedIdentity() IdentityState {
	return IdentityState{}
}

// IdentityFromSession resolves the identity purely from stored session data.
func IdentityFromSession(s Session) IdentityState {
	if !s.Authenticated() {
		return UnauthenticatedIdentity()
	}
	return AuthenticatedIdentity(s.Role, s.Profile())
}
