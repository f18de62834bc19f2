package entity

import "time"

// FederatedCredential is what the identity provider proved about a browser
// session. It identifies the user; the role always comes from the backend.
type FederatedCredential struct {
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

func (c FederatedCredential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// FederatedEvent is one emission of the provider's session-change listener.
type FederatedEvent struct {
	SessionID string `json:"session_id"`
	Active    bool   `json:"active"`
	Subject   string `json:"subject,omitempty"`
}
