package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "casefile"
	secretEnvVariable = "CASEFILE_AUTH_SECRET"
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// sessionClaims is the signed JWT claim set. The credential epoch travels
// as an RFC3339Nano UTC string so both sides compare in one timezone.
type sessionClaims struct {
	Role              string `json:"role"`
	OrganizationID    string `json:"organization_id,omitempty"`
	PasswordChangedAt string `json:"password_changed_at"`
	jwt.RegisteredClaims
}

// Session is the decoded, verified claim set of a bearer token.
type Session struct {
	UserID            string
	Role              Role
	OrganizationID    string
	PasswordChangedAt time.Time
	ExpiresAt         time.Time
}

// IssueSession signs a session token for the identity using HS256. The
// token embeds the acting id, role, organization and the identity's
// current credential epoch.
func IssueSession(identity *Identity, ttl time.Duration) (string, error) {
	if identity == nil || strings.TrimSpace(identity.ID) == "" {
		return "", errors.New("identity is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	epoch := identity.PasswordChangedAt.UTC()
	if epoch.IsZero() {
		epoch = now
	}
	claims := sessionClaims{
		Role:              string(identity.Role),
		OrganizationID:    identity.OrganizationID,
		PasswordChangedAt: epoch.Format(time.RFC3339Nano),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// DecodeSession verifies the token signature and time bounds and returns
// the embedded claim set. It does not consult storage; resolving the
// claims against the live identity record is the Service's job.
func DecodeSession(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrInvalidToken
	}
	epoch, err := time.Parse(time.RFC3339Nano, claims.PasswordChangedAt)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Session{
		UserID:            claims.Subject,
		Role:              role,
		OrganizationID:    claims.OrganizationID,
		PasswordChangedAt: epoch.UTC(),
		ExpiresAt:         claims.ExpiresAt.Time,
	}, nil
}

func validateClaims(claims *sessionClaims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
