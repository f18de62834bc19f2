package outbound

// SessionTokenService signs and verifies the opaque session cookie value.
type SessionTokenService interface {
	IssueSessionToken(sessionID string) (string, error)
	ParseSessionToken(token string) (string, error)
}
