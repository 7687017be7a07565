/*
Package api exposes the main API engine. All HTTP APIs are handled here: the liveness and readiness probes, the
diagnostic endpoint, the customer listing and the metrics exposition.

To use this package, you should create a new instance with New() passing a valid Config. The resulting Router will have
the Router.Handler() function that returns a handler that can be used in a http.Server (or in other middlewares).

Example:

	// Create the API router
	apirouter, err := api.New(api.Config{
		Logger: logger,
		State:  state,
	})
	if err != nil {
		logger.WithError(err).Error("error creating the API server instance")
		return fmt.Errorf("error creating the API server instance: %w", err)
	}
	router := apirouter.Handler()

	// ... other stuff here, like middleware chaining, etc.

	// Create the API server
	apiserver := http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Web.ReadHeaderTimeout,
	}

	// Start the service listening for requests in a separate goroutine
	apiserver.Serve(listener)

See the `main.go` file inside the `cmd/webapi` for a full usage example.
*/
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/ecdb-dev/ecdb/service/appstate"
)

// Config is used to provide dependencies and configuration to the New function.
type Config struct {
	// Logger where log entries are sent
	Logger logrus.FieldLogger

	// State is the shared application state; its database connection must already be initialized
	State *appstate.State

	// HealthTimeout bounds the database round-trip of the readiness probe. Zero means no bound.
	HealthTimeout time.Duration
}

// Router is the package API interface representing an API handler builder
type Router interface {
	// Handler returns an HTTP handler for APIs provided in this package
	Handler() http.Handler

	// Close terminates any resource used in the package
	Close() error
}

// New returns a new Router instance
func New(cfg Config) (Router, error) {
	// Check if the configuration is correct
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.State == nil || cfg.State.DB() == nil {
		return nil, errors.New("state with an initialized database is required")
	}
	if cfg.HealthTimeout < 0 {
		return nil, errors.New("health timeout must not be negative")
	}

	// Create a new router where we will register HTTP endpoints. The server will pass requests to this router to be
	// handled.
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	return &_router{
		router:        router,
		baseLogger:    cfg.Logger,
		state:         cfg.State,
		healthTimeout: cfg.HealthTimeout,
	}, nil
}

type _router struct {
	router *httprouter.Router

	// baseLogger is a logger for non-requests contexts, like goroutines or background tasks not started by a request.
	// Use context logger if available (e.g., in requests) instead of this logger.
	baseLogger logrus.FieldLogger

	state *appstate.State

	healthTimeout time.Duration
}

// Close does not release the database connection: the router only borrows it from the shared state.
func (rt *_router) Close() error {
	return nil
}
