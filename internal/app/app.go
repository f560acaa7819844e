package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/magicgate/internal/config"
)

type App struct {
	httpServer    *http.Server
	metricsServer *http.Server
	cleanup       func() error
	log           *zap.Logger
}

// New wires every component. Missing required configuration is logged and
// reported by the health endpoint; the server still starts and fails closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		log.Warn("required configuration missing", zap.Strings("keys", missing))
	}

	infra, err := setupInfra(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	c, err := setupHTTP(cfg, infra, log)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	a := &App{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           c.router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		cleanup: c.cleanup,
		log:     log,
	}
	if c.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.metrics)
		a.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Handler exposes the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves until Shutdown is called or a listener fails.
func (a *App) Run() error {
	var g errgroup.Group

	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		return serve(a.httpServer)
	})
	if a.metricsServer != nil {
		g.Go(func() error {
			a.log.Info("metrics server listening", zap.String("addr", a.metricsServer.Addr))
			return serve(a.metricsServer)
		})
	}
	return g.Wait()
}

func serve(s *http.Server) error {
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
