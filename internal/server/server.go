package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/store"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

// liveStore is the slice of the live-state repository the handlers need.
type liveStore interface {
	SaveRun(ctx context.Context, res *swarm.RunResult) error
	GetRun(ctx context.Context, id string) (*swarm.RunResult, error)
}

// Server wires the research pipeline behind an HTTP API.
type Server struct {
	cfg      *config.Config
	orch     *swarm.Orchestrator
	registry *swarm.Registry
	archive  *store.Store
	live     liveStore
	logger   *log.Logger
}

// Run builds every dependency from config and serves until the listener
// fails. The archive and the live-state repository are optional; the
// pipeline runs without them.
func Run(addr string) error {
	cfg := config.LoadConfig("")
	ctx := context.Background()

	gw, err := gateway.NewGenAIGateway(ctx, cfg.Gateway.APIKey)
	if err != nil {
		return err
	}

	registry := swarm.NewRegistry(cfg, gw, nil, nil)
	if err := registry.EnsureStandingExperts(ctx, cfg.Swarm.BriefingURLs); err != nil {
		return err
	}

	metrics := swarm.NewMetrics(prometheus.DefaultRegisterer)
	srv := &Server{
		cfg:      cfg,
		orch:     swarm.NewOrchestrator(cfg, gw, registry, metrics),
		registry: registry,
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}

	if cfg.Storage.Postgres.Configured() {
		archive, err := store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		srv.archive = archive
	}
	if cfg.Storage.Redis.Configured() {
		live, err := store.NewLiveRunRepository(ctx, cfg.Storage.Redis)
		if err != nil {
			return err
		}
		srv.live = live
		// Stream pipeline progress so status polls see in-flight runs.
		srv.orch.SetStepObserver(func(res *swarm.RunResult) {
			if err := live.SaveRun(context.Background(), res); err != nil {
				srv.logger.Printf("live step save failed for run %s: %v", res.ID, err)
			}
		})
	}

	e := srv.buildEcho()
	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	s.registerRuns(api.Group("/runs"))
	s.registerExperts(api.Group("/experts"))
	return e
}
