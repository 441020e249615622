// Package restserver exposes the analytics engine over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/energymonitor/internal/analytics"
	"github.com/chrissnell/energymonitor/internal/storage"
	"github.com/chrissnell/energymonitor/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	engine     *analytics.Engine
	store      storage.RunStore
	zones      []config.ZoneData
	zoneSet    map[string]bool
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, engine *analytics.Engine, store storage.RunStore, zones []config.ZoneData, logger *zap.SugaredLogger) (*Controller, error) {
	if engine == nil || store == nil {
		return nil, fmt.Errorf("REST server needs both an analytics engine and a run store")
	}

	if rc.ListenAddr == "" {
		logger.Infof("rest.listen-addr not provided; defaulting to %s (all interfaces)", config.DefaultListenAddr)
		rc.ListenAddr = config.DefaultListenAddr
	}
	if rc.HTTPPort == 0 {
		logger.Infof("rest.http-port not provided; defaulting to %d", config.DefaultHTTPPort)
		rc.HTTPPort = config.DefaultHTTPPort
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		engine:     engine,
		store:      store,
		zones:      zones,
		zoneSet:    make(map[string]bool, len(zones)),
		logger:     logger,
	}
	for _, z := range zones {
		ctrl.zoneSet[z.Name] = true
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.HTTPPort)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.TLSCertPath != "" && c.restConfig.TLSKeyPath != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.TLSCertPath, c.restConfig.TLSKeyPath)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
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
	router.Use(c.logRequests)

	router.HandleFunc("/zones", c.handlers.GetZones).Methods(http.MethodGet)

	users := router.PathPrefix("/users/{user}").Subrouter()
	users.HandleFunc("/projects", c.handlers.GetProjects).Methods(http.MethodGet)
	users.HandleFunc("/projects", c.handlers.AddProject).Methods(http.MethodPost)
	users.HandleFunc("/averages", c.handlers.GetAllProjectAverages).Methods(http.MethodGet)
	users.HandleFunc("/projects/{project}/runs", c.handlers.GetProjectRuns).Methods(http.MethodGet)
	users.HandleFunc("/projects/{project}/runs", c.handlers.AddRun).Methods(http.MethodPost)
	users.HandleFunc("/projects/{project}/averages", c.handlers.GetProjectAverages).Methods(http.MethodGet)
	users.HandleFunc("/projects/{project}/carbon", c.handlers.GetCarbon).Methods(http.MethodGet)

	return router
}

// logRequests logs each request at debug level once it has been served
func (c *Controller) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.logger.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
