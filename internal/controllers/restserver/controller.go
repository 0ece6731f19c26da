// Package restserver exposes the live metric pipeline over HTTP: the
// current display snapshot, the rolling histories, runtime settings,
// session reset and CSV log rotation.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/log"
	"github.com/chrissnell/capnograph/internal/pipeline"
	"github.com/chrissnell/capnograph/internal/storage/sqlite"
	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

// Pipeline is the part of the metric pipeline the API drives
type Pipeline interface {
	Snapshot(ctx context.Context) (pipeline.Snapshot, error)
	History(ctx context.Context, ch types.Channel) ([]types.Point, error)
	RatioHistory(ctx context.Context) ([]types.Point, error)
	SetFlowTrigger(ctx context.Context, v float64) error
	SetCo2Trigger(ctx context.Context, v float64) error
	SetHistoryCapacity(ctx context.Context, n int) error
	ResetSession(ctx context.Context) (uuid.UUID, error)
}

// LogRotator switches the CSV log file
type LogRotator interface {
	Rotate(path string) error
	Path() string
}

// SessionLister lists stored sessions
type SessionLister interface {
	Sessions(ctx context.Context) ([]sqlite.Session, error)
}

// Backends are the components the API serves. Log and Sessions may be nil
// when the matching storage backend is not configured.
type Backends struct {
	Pipeline Pipeline
	Log      LogRotator
	Sessions SessionLister
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	backends   Backends
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, backends Backends, logger *zap.SugaredLogger) (*Controller, error) {
	if backends.Pipeline == nil {
		return nil, errors.New("REST server requires a metric pipeline")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		backends:   backends,
		logger:     logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", c.handlers.GetSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/history/{channel}", c.handlers.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/settings/{setting}", c.handlers.PutSetting).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/session/reset", c.handlers.ResetSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", c.handlers.GetSessions).Methods(http.MethodGet)
	api.HandleFunc("/log", c.handlers.GetLog).Methods(http.MethodGet)
	api.HandleFunc("/log/rotate", c.handlers.RotateLog).Methods(http.MethodPost)
	api.HandleFunc("/log", c.handlers.StopLog).Methods(http.MethodDelete)

	return router
}
