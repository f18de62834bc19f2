package entity

import (
	"errors"
	"strings"
)

var ErrInconsistentSession = errors.New("session access token and role must be set together")

// Session is the per-browser credential record kept by the session store.
// A session is authenticated iff AccessToken is present.
type Session struct {
	AccessToken  string                 `json:"access_token,omitempty"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	DisplayName  string                 `json:"display_name,omitempty"`
	Role         Role                   `json:"role,omitempty"`
	Email        string                 `json:"email,omitempty"`
	UserDetails  map[string]interface{} `json:"user_details,omitempty"`
	// Federated marks sessions established through the identity provider;
	// only those end when the provider session ends.
	Federated bool `json:"federated,omitempty"`
}

// SessionUpdate carries a partial write. Nil fields are left unchanged; a
// pointer to the empty string removes the field.
type SessionUpdate struct {
	AccessToken  *string
	RefreshToken *string
	DisplayName  *string
	Role         *Role
	Email        *string
	UserDetails  map[string]interface{}
	Federated    *bool
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

func (s Session) IsEmpty() bool {
	return s.AccessToken == "" &&
		s.RefreshToken == "" &&
		s.DisplayName == "" &&
		s.Role == "" &&
		s.Email == "" &&
		len(s.UserDetails) == 0 &&
		!s.Federated
}

// Apply merges the update into a copy of the session and validates the
// token/role pairing of the result.
func (s Session) Apply(u SessionUpdate) (Session, error) {
	next := s
	if u.AccessToken != nil {
		next.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		next.RefreshToken = *u.RefreshToken
	}
	if u.DisplayName != nil {
		next.DisplayName = *u.DisplayName
	}
	if u.Role != nil {
		next.Role = *u.Role
	}
	if u.Email != nil {
		next.Email = *u.Email
	}
	if u.UserDetails != nil {
		next.UserDetails = u.UserDetails
	}
	if u.Federated != nil {
		next.Federated = *u.Federated
	}

	if (next.AccessToken == "") != (next.Role == "") {
		return s, ErrInconsistentSession
	}
	return next, nil
}

// Profile builds the user view exposed through the identity state.
func (s Session) Profile() *Profile {
	if !s.Authenticated() {
		return nil
	}
	return &Profile{
		DisplayName: s.DisplayName,
		Email:       s.Email,
		Role:        s.Role,
		Details:     s.UserDetails,
	}
}

// NewSessionCommit builds the update committed after a successful login or
// federated exchange.
func NewSessionCommit(access, refresh, name string, role Role, email string, details map[string]interface{}) SessionUpdate {
	display := FirstName(name)
	if details == nil {
		details = map[string]interface{}{}
	}
	federated := false
	return SessionUpdate{
		AccessToken:  &access,
		RefreshToken: &refresh,
		DisplayName:  &display,
		Role:         &role,
		Email:        &email,
		UserDetails:  details,
		Federated:    &federated,
	}
}

// AsFederated marks the committed session as provider-backed.
func (u SessionUpdate) AsFederated() SessionUpdate {
	federated := true
	u.Federated = &federated
	return u
}

// FirstName returns the first whitespace-separated word of a full name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
