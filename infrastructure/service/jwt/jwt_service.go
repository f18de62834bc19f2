package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/infrastructure/service/sealer"
)

const (
	issuer      = "securemed-portal"
	tokenType   = "session"
	claimSID    = "sid"
	claimType   = "type"
	defaultLife = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// JWTService signs the session cookie so a tampered or forged cookie is
// treated as no session at all.
type JWTService struct {
	hmacSecret []byte
	ttl        time.Duration
	now        func() time.Time
}

var _ outbound.SessionTokenService = (*JWTService)(nil)

func NewJWTService(secret string, ttl time.Duration) (*JWTService, error) {
	key, err := sealer.DeriveKey(secret, sealer.PurposeCookie)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cookie key: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultLife
	}
	return &JWTService{
		hmacSecret: key,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

func (s *JWTService) IssueSessionToken(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}
	now := s.now()
	claims := jwt.MapClaims{
		claimSID:  sessionID,
		claimType: tokenType,
		"iss":     issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) ParseSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.hmacSecret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", handleValidationError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if typ, _ := claims[claimType].(string); typ != tokenType {
		return "", ErrInvalidToken
	}
	sid, _ := claims[claimSID].(string)
	if sid == "" {
		return "", ErrInvalidToken
	}
	return sid, nil
}

func handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
