package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of an issued session credential (60 days).
const DefaultSessionTTL = 60 * 24 * time.Hour

var (
	// ErrMalformedClaims reports a token whose signature and expiry are fine but
	// whose payload does not carry the expected claim shapes.
	ErrMalformedClaims = errors.New("session claims malformed")
	// ErrIssuedInFuture reports an iat beyond the allowed clock skew.
	ErrIssuedInFuture = errors.New("session iat too far in the future")
)

// Config defines how session credentials are signed and verified.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	SessionTTL   time.Duration
	Secret       []byte
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// Now overrides the clock for issuance and validation. Nil means time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS256 session credentials.
//
// Manager holds no mutable state after construction and is safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the payload of a session credential. IssuedAt is epoch milliseconds.
type Claims struct {
	AppID     string           `json:"appId"`
	IssuedAt  int64            `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
	Issuer    string           `json:"iss,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return "", nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// IssuedTime returns the issuance instant embedded in the credential.
func (c Claims) IssuedTime() time.Time {
	return time.UnixMilli(c.IssuedAt)
}

// NewManager validates cfg and returns a Manager.
//
// A zero SessionTTL selects DefaultSessionTTL and a zero MaxFutureIAT selects ten minutes.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.SessionTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Secret = append([]byte(nil), cfg.Secret...)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// TTL reports the configured credential lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.SessionTTL
}

// Issue signs a credential for appID that expires SessionTTL from now.
func (j *Manager) Issue(appID string) (string, error) {
	if j == nil {
		return "", errors.New("session manager not configured")
	}
	if appID == "" {
		return "", errors.New("empty app id")
	}

	now := j.config.Now()
	claims := Claims{
		AppID:     appID,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.config.SessionTTL)),
		Issuer:    j.config.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.Secret)
}

// Parse checks signature, expiry and claim shapes in one pass and returns the
// decoded claims. Callers on the request path should prefer Verify.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.AppID == "" || claims.IssuedAt <= 0 {
		return nil, ErrMalformedClaims
	}
	maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
	if claims.IssuedTime().After(maxAllowed) {
		return nil, ErrIssuedInFuture
	}

	return claims, nil
}

// Verify is Parse with every failure collapsed into false. Expired, forged and
// malformed credentials are indistinguishable to the caller.
func (j *Manager) Verify(tokenStr string) (*Claims, bool) {
	if j == nil || tokenStr == "" {
		return nil, false
	}
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return nil, false
	}
	return claims, true
}
