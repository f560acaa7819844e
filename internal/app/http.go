package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/MrEthical07/magicgate/internal/audit"
	"github.com/MrEthical07/magicgate/internal/config"
	"github.com/MrEthical07/magicgate/internal/handler"
	"github.com/MrEthical07/magicgate/internal/rate"
	"github.com/MrEthical07/magicgate/internal/stores"
	"github.com/MrEthical07/magicgate/jwt"
	"github.com/MrEthical07/magicgate/metrics"
	otelexport "github.com/MrEthical07/magicgate/metrics/export/otel"
	"github.com/MrEthical07/magicgate/metrics/export/prometheus"
	"github.com/MrEthical07/magicgate/middleware"
	"github.com/MrEthical07/magicgate/session"
)

type components struct {
	router   http.Handler
	metrics  http.Handler
	sessions *session.Service
	cleanup  func() error
}

type metricsSource struct {
	metrics *metrics.Metrics
	audit   *audit.Dispatcher
}

func (s metricsSource) Snapshot() metrics.Snapshot { return s.metrics.Snapshot() }
func (s metricsSource) AuditDropped() uint64      { return s.audit.Dropped() }

func setupHTTP(cfg *config.Config, infra *Infra, log *zap.Logger) (*components, error) {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	var codec session.Codec
	if cfg.JWTSecret != "" {
		manager, err := jwt.NewManager(jwt.Config{
			SessionTTL: cfg.SessionTTL,
			Secret:     []byte(cfg.JWTSecret),
			Issuer:     cfg.JWTIssuer,
		})
		if err != nil {
			return nil, err
		}
		codec = manager
	} else {
		log.Warn("JWT_SECRET not configured; sessions cannot be issued or verified")
	}

	m := metrics.New(metrics.Config{
		Enabled:                 cfg.MetricsAddr != "",
		EnableLatencyHistograms: true,
	})

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    true,
		BufferSize: cfg.AuditBuffer,
		DropIfFull: true,
	}, audit.NewZapSink(log))

	store := stores.NewMagicLinkStore(infra.Redis, stores.MagicLinkStoreConfig{
		Prefix:  cfg.RedisKeyPrefix,
		Timeout: cfg.RedisTimeout,
	}, log)

	throttle := rate.New(infra.Redis, rate.Config{
		MaxFailures: cfg.RedeemMaxFailures,
		Window:      cfg.RedeemFailureWindow,
		Timeout:     cfg.RedisTimeout,
	})

	sessions := session.NewService(session.Config{
		Secure:       cfg.Production(),
		SessionTTL:   cfg.SessionTTL,
		AtomicRedeem: cfg.RedeemAtomic,
	}, codec, store, log,
		session.WithAudit(dispatcher),
		session.WithMetrics(m),
		session.WithThrottle(throttle),
	)

	gate := middleware.NewGate(middleware.DefaultGateConfig(), sessions, middleware.WithGateMetrics(m))

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	// gin trusts every proxy by default, which would let any caller pick the
	// client IP the redemption throttle is keyed on.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		dispatcher.Close()
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(handler.Recovery(log), handler.RequestContext(log), middleware.Gin(gate))
	handler.NewHandler(sessions, cfg.Missing(), log).RegisterRoutes(router)

	var root http.Handler = router
	if len(cfg.CORSAllowedOrigins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", handler.RequestIDHeader},
			ExposedHeaders:   []string{handler.RequestIDHeader},
			AllowCredentials: true,
		}).Handler(router)
	}

	// ----------------------------
	// Metrics
	// ----------------------------

	var meterExport *otelexport.Exporter
	var metricsHandler http.Handler
	if m.Enabled() {
		source := metricsSource{metrics: m, audit: dispatcher}
		metricsHandler = prometheus.NewExporter(source).Handler()

		// Observed through whatever MeterProvider the process installed; a
		// no-op unless one is set.
		exp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/MrEthical07/magicgate"), source)
		if err != nil {
			dispatcher.Close()
			return nil, err
		}
		meterExport = exp
	}

	return &components{
		router:   root,
		metrics:  metricsHandler,
		sessions: sessions,
		cleanup: func() error {
			dispatcher.Close()
			return errors.Join(meterExport.Close(), infra.Close())
		},
	}, nil
}
