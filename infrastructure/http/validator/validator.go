package validator

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds JSON request bodies handled by the portal itself.
const MaxBodyBytes = 1 << 20

var ErrInvalidBody = errors.New("invalid request body")

// DecodeJSON reads a single JSON object from r into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return ErrInvalidBody
	}
	return nil
}

func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidateState compares an OAuth state echoed by the provider with the one
// issued to the browser.
func ValidateState(issued, echoed string) bool {
	if issued == "" || echoed == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(issued), []byte(echoed)) == 1
}

func ValidateJWT(token string) bool {
	if token == "" {
		return false
	}

	// JWT token harus memiliki 3 bagian yang dipisahkan oleh titik
	parts := strings.Split(token, ".")
	return len(parts) == 3
}
