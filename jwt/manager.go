package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNotJWT is returned by [Inspect] when the token is not a parseable JWT. Opaque tokens are
// valid bearer credentials, so callers usually treat this as "no claims available".
var ErrNotJWT = errors.New("token is not a jwt")

// Config configures a [Manager]. Tokens are HS256, like the access tokens of the
// authentication service the client talks to.
type Config struct {
	AccessTTL time.Duration
	// Secret is the shared HMAC key, at least 32 bytes.
	Secret []byte
	Issuer string
	Leeway time.Duration
	// Now overrides the clock used for issuing and validation.
	Now func() time.Time
}

// Manager issues and verifies access tokens.
type Manager struct {
	cfg    Config
	parser *jwt.Parser
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Remaining is the time left until exp at now. It is zero once exp has passed and for claims
// without exp.
func (c *AccessClaims) Remaining(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("AccessTTL must be > 0")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("Leeway must be within [0, 2m]")
	case len(cfg.Secret) < 32:
		return nil, errors.New("Secret must be at least 256 bits")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Manager{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for subject. Every token gets a random jti so the service can revoke
// tokens one at a time.
func (m *Manager) Issue(subject, email, role string) (string, *AccessClaims, error) {
	now := m.cfg.Now()
	claims := &AccessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (m *Manager) Parse(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Inspect decodes the claims of token without verifying the signature. Only the holder of
// a token should use it, to learn when the token stops being accepted.
func Inspect(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of token. ok is false for opaque tokens and for JWTs
// without exp.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
