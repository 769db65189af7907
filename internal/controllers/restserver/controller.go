// Package restserver exposes the power and sky models over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/radiativepower/internal/log"
	"github.com/chrissnell/radiativepower/internal/metrics"
	"github.com/chrissnell/radiativepower/internal/storage"
	"github.com/chrissnell/radiativepower/pkg/config"
	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Models are the evaluators the handlers call.
type Models struct {
	Power   *radiative.PowerModel
	Tracker *radiative.Tracker
	Sky     *sky.TemperatureModel
	// Bandgap and Formula are used when a request omits them.
	Bandgap units.Electronvolt
	Formula sky.Formula
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	models     Models
	metrics    *metrics.Collector
	health     *storage.HealthManager
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller. collector and health
// may be nil.
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, models Models, collector *metrics.Collector, health *storage.HealthManager, logger *zap.SugaredLogger) (*Controller, error) {
	if models.Power == nil || models.Tracker == nil || models.Sky == nil {
		return nil, fmt.Errorf("REST server needs a power model, a tracker and a sky model")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		models:     models,
		metrics:    collector,
		health:     health,
		logger:     logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// Handler returns the router serving every endpoint
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(log.HTTPMiddleware(c.logger))
	router.Use(c.metricsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/mpp", c.handlers.GetMaxPowerPoint).Methods(http.MethodGet)
	api.HandleFunc("/power", c.handlers.GetPower).Methods(http.MethodGet)
	api.HandleFunc("/sky/emissivity", c.handlers.GetEmissivity).Methods(http.MethodGet)
	api.HandleFunc("/sky/temperature", c.handlers.GetSkyTemperature).Methods(http.MethodGet)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", c.metrics.Handler()).Methods(http.MethodGet)

	return router
}

// metricsMiddleware records request counts and latency by route template
func (c *Controller) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		route := req.URL.Path
		if r := mux.CurrentRoute(req); r != nil {
			if tpl, err := r.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m := httpsnoop.CaptureMetrics(next, w, req)
		c.metrics.ObserveHTTP(route, m.Code, m.Duration)
	})
}
