package session

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/MrEthical07/magicgate/internal/audit"
	"github.com/MrEthical07/magicgate/internal/rate"
	"github.com/MrEthical07/magicgate/internal/stores"
	"github.com/MrEthical07/magicgate/jwt"
	"github.com/MrEthical07/magicgate/metrics"
	"go.uber.org/zap"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

// Session is the authenticated identity carried by a valid credential.
type Session struct {
	AppID    string    `json:"appId"`
	IssuedAt time.Time `json:"-"`
}

// Codec signs and verifies session credentials.
type Codec interface {
	Issue(appID string) (string, error)
	Verify(token string) (*jwt.Claims, bool)
}

// Redeemer is the single-use token store. Every failure is reported as absent.
type Redeemer interface {
	Lookup(ctx context.Context, token string) (*stores.MagicLink, bool)
	Consume(ctx context.Context, token string) (*stores.MagicLink, bool)
	Invalidate(ctx context.Context, token string)
}

// Throttle limits failed redemptions per client. Check refuses with
// rate.ErrRateLimited; any other error is logged and ignored.
type Throttle interface {
	Check(ctx context.Context, client string) error
	RecordFailure(ctx context.Context, client string) error
}

// Config configures a Service. Zero values fall back to the cookie name
// "auth-session" and a session lifetime of jwt.DefaultSessionTTL.
type Config struct {
	CookieName string
	Secure     bool
	// SessionTTL is also the cookie Max-Age, so the cookie never outlives the
	// credential it carries. The default gives Max-Age=5184000.
	SessionTTL time.Duration
	// AtomicRedeem reads and deletes a token in one store call. When false the
	// token is looked up and then invalidated in two calls.
	AtomicRedeem bool
}

// Option attaches optional collaborators to a Service.
type Option func(*Service)

// WithAudit emits redemption, session and logout events to d.
func WithAudit(d *audit.Dispatcher) Option {
	return func(s *Service) { s.audit = d }
}

// WithMetrics records redemption and session counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithThrottle limits failed redemptions per client IP. The client IP is read
// from the request context (see audit.WithClientIP); requests without one are
// not throttled.
func WithThrottle(t Throttle) Option {
	return func(s *Service) { s.throttle = t }
}

// Service redeems magic link tokens and manages the session cookie.
//
// Service is immutable after construction and safe for concurrent use.
type Service struct {
	codec    Codec
	redeemer Redeemer
	cookie   CookieOptions
	atomic   bool
	log      *zap.Logger
	audit    *audit.Dispatcher
	metrics  *metrics.Metrics
	throttle Throttle
}

// NewService builds a Service. A nil codec makes every verification fail and
// every issuance and redemption return ErrCredentialUnavailable. A nil
// redeemer makes every redemption fail with ErrUnknownOrConsumedToken.
func NewService(cfg Config, codec Codec, redeemer Redeemer, log *zap.Logger, opts ...Option) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = jwt.DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		codec:    codec,
		redeemer: redeemer,
		cookie: CookieOptions{
			Name:     cfg.CookieName,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   cfg.SessionTTL,
		}.normalize(),
		atomic: cfg.AtomicRedeem,
		log:    log.Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CookieName reports the name of the session cookie.
func (s *Service) CookieName() string {
	return s.cookie.Name
}

// ValidateToken is the syntax check applied before any store access.
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return ErrMalformedToken
	}
	return nil
}

// Redeem exchanges a magic link token for the app id it was issued to. A
// token can be redeemed at most once.
func (s *Service) Redeem(ctx context.Context, token string) (string, error) {
	start := time.Now()
	defer func() {
		s.metrics.Observe(metrics.RedeemLatency, time.Since(start))
	}()

	if err := ValidateToken(token); err != nil {
		s.metrics.Inc(metrics.RedeemMalformed)
		s.emit(ctx, audit.Event{
			EventType:   audit.EventTokenRejected,
			TokenPrefix: tokenPrefix(token),
			Reason:      "malformed",
		})
		return "", err
	}

	// Without a codec no credential can follow, so the token is left in place.
	if s.codec == nil {
		s.log.Error("redemption refused: session credentials are not configured")
		return "", ErrCredentialUnavailable
	}

	client := audit.ClientIP(ctx)
	if s.throttled(ctx, client) {
		s.metrics.Inc(metrics.RedeemThrottled)
		s.emit(ctx, audit.Event{
			EventType:   audit.EventTokenRejected,
			TokenPrefix: tokenPrefix(token),
			Reason:      "throttled",
		})
		return "", ErrTooManyAttempts
	}

	record, ok := s.take(ctx, token)
	if !ok {
		s.recordFailure(ctx, client)
		s.metrics.Inc(metrics.RedeemUnknown)
		s.emit(ctx, audit.Event{
			EventType:   audit.EventTokenRejected,
			TokenPrefix: tokenPrefix(token),
			Reason:      "unknown_or_consumed",
		})
		return "", ErrUnknownOrConsumedToken
	}

	s.metrics.Inc(metrics.RedeemSuccess)
	s.emit(ctx, audit.Event{
		EventType:   audit.EventTokenRedeemed,
		AppID:       record.AppID,
		TokenPrefix: tokenPrefix(token),
		Success:     true,
	})
	return record.AppID, nil
}

func (s *Service) throttled(ctx context.Context, client string) bool {
	if s.throttle == nil || client == "" {
		return false
	}
	err := s.throttle.Check(ctx, client)
	if err == nil {
		return false
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return true
	}
	s.log.Warn("redemption throttle check failed", zap.Error(err))
	return false
}

func (s *Service) recordFailure(ctx context.Context, client string) {
	if s.throttle == nil || client == "" {
		return
	}
	if err := s.throttle.RecordFailure(ctx, client); err != nil {
		s.log.Warn("failed to record redemption failure", zap.Error(err))
	}
}

func (s *Service) take(ctx context.Context, token string) (*stores.MagicLink, bool) {
	if s.redeemer == nil {
		return nil, false
	}
	if s.atomic {
		return s.redeemer.Consume(ctx, token)
	}

	record, ok := s.redeemer.Lookup(ctx, token)
	if !ok {
		return nil, false
	}
	s.redeemer.Invalidate(ctx, token)
	return record, true
}

// Issue signs a new session credential for appID.
func (s *Service) Issue(appID string) (string, error) {
	if s.codec == nil {
		return "", ErrCredentialUnavailable
	}
	return s.codec.Issue(appID)
}

// VerifyCookie decodes a credential. Any failure yields no session.
func (s *Service) VerifyCookie(value string) (*Session, bool) {
	if value == "" || s.codec == nil {
		return nil, false
	}
	claims, ok := s.codec.Verify(value)
	if !ok {
		return nil, false
	}
	return &Session{AppID: claims.AppID, IssuedAt: claims.IssuedTime()}, true
}

// FromRequest reads the session cookie from r and verifies it.
func (s *Service) FromRequest(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(s.cookie.Name)
	if err != nil {
		return nil, false
	}
	return s.VerifyCookie(c.Value)
}

// Establish issues a credential for appID and sets it as the session cookie.
func (s *Service) Establish(ctx context.Context, w http.ResponseWriter, appID string) (string, error) {
	token, err := s.Issue(appID)
	if err != nil {
		s.metrics.Inc(metrics.SessionIssueFailure)
		s.log.Error("failed to issue session credential", zap.String("app_id", appID), zap.Error(err))
		return "", ErrCredentialUnavailable
	}

	s.SetCookie(w, token)
	s.metrics.Inc(metrics.SessionIssued)
	s.emit(ctx, audit.Event{
		EventType: audit.EventSessionEstablished,
		AppID:     appID,
		Success:   true,
	})
	return token, nil
}

// Logout clears the session cookie. The credential itself stays valid until
// it expires.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, current *Session) {
	s.ClearCookie(w)
	s.metrics.Inc(metrics.Logout)

	event := audit.Event{EventType: audit.EventLogout, Success: true}
	if current != nil {
		event.AppID = current.AppID
	}
	s.emit(ctx, event)
}

// SetCookie writes token as the session cookie.
func (s *Service) SetCookie(w http.ResponseWriter, token string) {
	SetCookie(w, token, s.cookie)
}

// ClearCookie expires the session cookie in the client.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	ClearCookie(w, s.cookie)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.IP = audit.ClientIP(ctx)
	event.RequestID = audit.RequestID(ctx)
	s.audit.Emit(ctx, event)
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
