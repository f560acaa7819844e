package middleware

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/MrEthical07/magicgate/metrics"
	"github.com/MrEthical07/magicgate/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session the gate attached to a protected
// request.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// SessionSource resolves the session carried by a request without network
// I/O. *session.Service satisfies it.
type SessionSource interface {
	FromRequest(r *http.Request) (*session.Session, bool)
}

// GateConfig lists what passes without a session.
type GateConfig struct {
	// AuthPath is where unauthenticated requests are sent.
	AuthPath string
	// PublicPaths match exactly or as a leading path segment, so "/auth"
	// covers "/auth/magic-link" but not "/authx".
	PublicPaths      []string
	StaticPrefixes   []string
	StaticExtensions []string
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		AuthPath:       "/auth",
		PublicPaths:    []string{"/auth", "/api/auth", "/api/health"},
		StaticPrefixes: []string{"/static/", "/assets/"},
		StaticExtensions: []string{
			".css", ".js", ".map",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
			".woff", ".woff2", ".ttf", ".txt",
		},
	}
}

type GateOption func(*Gate)

func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// Gate lets public paths and static assets through and requires a valid
// session everywhere else.
type Gate struct {
	source     SessionSource
	public     []string
	prefixes   []string
	extensions map[string]struct{}
	redirectTo string
	metrics    *metrics.Metrics
}

// NewGate builds a Gate. Empty config fields fall back to DefaultGateConfig.
// A nil source denies every protected request.
func NewGate(cfg GateConfig, source SessionSource, opts ...GateOption) *Gate {
	def := DefaultGateConfig()
	if cfg.AuthPath == "" {
		cfg.AuthPath = def.AuthPath
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = def.PublicPaths
	}
	if cfg.StaticPrefixes == nil {
		cfg.StaticPrefixes = def.StaticPrefixes
	}
	if cfg.StaticExtensions == nil {
		cfg.StaticExtensions = def.StaticExtensions
	}

	g := &Gate{
		source:     source,
		public:     make([]string, 0, len(cfg.PublicPaths)),
		prefixes:   append([]string(nil), cfg.StaticPrefixes...),
		extensions: make(map[string]struct{}, len(cfg.StaticExtensions)),
		redirectTo: cfg.AuthPath + "?" + url.Values{"error": {"unauthorized"}}.Encode(),
	}
	for _, p := range cfg.PublicPaths {
		if p = strings.TrimSuffix(p, "/"); p != "" {
			g.public = append(g.public, p)
		}
	}
	for _, ext := range cfg.StaticExtensions {
		g.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bypass reports whether p is served without a session.
func (g *Gate) Bypass(p string) bool {
	return g.isPublic(p) || g.isStatic(p)
}

func (g *Gate) isPublic(p string) bool {
	for _, pub := range g.public {
		if p == pub || strings.HasPrefix(p, pub+"/") {
			return true
		}
	}
	return false
}

func (g *Gate) isStatic(p string) bool {
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := g.extensions[ext]
	return ok
}

// Handler wraps next with the gate. Passed requests are forwarded unmodified
// apart from the session attached to the context of protected requests.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			g.metrics.Observe(metrics.GateLatency, time.Since(start))
		}()

		if g.Bypass(r.URL.Path) {
			g.metrics.Inc(metrics.GateBypassed)
			next.ServeHTTP(w, r)
			return
		}

		var (
			sess *session.Session
			ok   bool
		)
		if g.source != nil {
			sess, ok = g.source.FromRequest(r)
		}
		if !ok {
			g.metrics.Inc(metrics.GateRedirected)
			http.Redirect(w, r, g.redirectTo, http.StatusTemporaryRedirect)
			return
		}

		g.metrics.Inc(metrics.GateAllowed)
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
