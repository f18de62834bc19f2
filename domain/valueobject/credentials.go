package valueobject

import (
	"regexp"
	"strings"

	"github.com/securemedai/portal/domain/entity"
)

var emailRegex = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// FieldError is a validation failure scoped to one form field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

type Credentials struct {
	email    string
	password string
	role     entity.Role
}

func NewCredentials(email, password, role string) (*Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &FieldError{Field: "email", Message: "Email is required"}
	}
	if !emailRegex.MatchString(email) {
		return nil, &FieldError{Field: "email", Message: "Invalid email address"}
	}
	if password == "" {
		return nil, &FieldError{Field: "password", Message: "Password is required"}
	}
	parsed, ok := entity.ParseRole(role)
	if !ok {
		return nil, &FieldError{Field: "role", Message: "Please select your role"}
	}
	return &Credentials{
		email:    email,
		password: password,
		role:     parsed,
	}, nil
}

func (c *Credentials) Email() string {
	return c.email
}

func (c *Credentials) Password() string {
	return c.password
}

func (c *Credentials) Role() entity.Role {
	return c.role
}

// ValidEmail reports whether value matches the standard address pattern.
func ValidEmail(value string) bool {
	return emailRegex.MatchString(strings.TrimSpace(value))
}
