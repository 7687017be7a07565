/*
Webapi is the executable for the main web server.
It builds a web server around APIs from `service/api`.
Webapi connects to external resources needed (the SurrealDB server) and starts the HTTP listener only once the
database session is established.

Usage:

	webapi [flags]

Flags and configurations are handled automatically by the code in `load-configuration.go`.

Return values (exit codes):

	0
		The program ended successfully (no errors, stopped by a termination signal after draining)

	> 0
		The program ended due to an error (database unreachable, credentials rejected, listener bind failure, or a
		termination signal received before the listener was bound)

The database schema is not managed here.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/ardanlabs/conf"
	"github.com/sirupsen/logrus"

	"github.com/ecdb-dev/ecdb/service/api"
	"github.com/ecdb-dev/ecdb/service/appstate"
	"github.com/ecdb-dev/ecdb/service/database"
	"github.com/ecdb-dev/ecdb/service/lifecycle"
)

// main is the program entry point. The only purpose of this function is to call run() and set the exit code if there is
// any error
func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error: ", err)
		os.Exit(1)
	}
}

// run executes the program. The body of this function should perform the following steps:
// * reads the configuration
// * creates and configure the logger
// * connects to the database
// * creates the API server
// * runs it until a termination signal, then drains it
func run() error {
	// Load Configuration and defaults
	cfg, err := loadConfiguration(os.Args[1:])
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return err
	}

	logger := newLogger(cfg)

	// Make a channel to listen for an interrupt, terminate or quit signal from the OS.
	signals, stop := lifecycle.NotifyTermination()
	defer stop()

	return serve(context.Background(), cfg, logger, signals)
}

// newLogger creates the logger according to the configuration.
func newLogger(cfg WebAPIConfiguration) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// errStartupInterrupted is returned when a termination signal arrives before the server is listening.
var errStartupInterrupted = errors.New("startup interrupted")

// openDatabase runs database.New until it completes or a termination signal arrives, whichever is first. On a signal
// the initialization context is cancelled and a session established afterwards is closed.
func openDatabase(ctx context.Context, cfg database.Config, signals <-chan os.Signal) (database.AppDatabase, error) {
	ctx, cancel := context.WithCancel(ctx)

	type result struct {
		db  database.AppDatabase
		err error
	}
	done := make(chan result, 1)
	go func() {
		db, err := database.New(ctx, cfg)
		done <- result{db: db, err: err}
	}()

	select {
	case res := <-done:
		cancel()
		return res.db, res.err
	case sig := <-signals:
		cancel()
		go func() {
			if res := <-done; res.err == nil {
				_ = res.db.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %s", errStartupInterrupted, sig)
	}
}

// serve establishes the database session, binds the listener and runs the lifecycle coordinator. Any startup failure
// is returned before a single request can be accepted.
func serve(ctx context.Context, cfg WebAPIConfiguration, logger *logrus.Logger, signals <-chan os.Signal) error {
	logger.Infof("application initializing")

	// Start Database
	logger.Println("initializing database support")
	dbcfg := database.Config{
		URL:       cfg.Database.URL,
		Username:  cfg.Database.Username,
		Password:  cfg.Database.Password,
		Namespace: cfg.Database.Namespace,
		Name:      cfg.Database.Name,
	}
	db, err := openDatabase(ctx, dbcfg, signals)
	if err != nil {
		logger.WithError(err).Error("error creating AppDatabase")
		return fmt.Errorf("creating AppDatabase: %w", err)
	}
	defer func() {
		logger.Debug("database stopping")
		_ = db.Close()
	}()
	logger.WithFields(logrus.Fields{
		"namespace": dbcfg.Namespace,
		"database":  dbcfg.Name,
	}).Info("database session established")

	state := appstate.New(appstate.Config{
		BindAddr: cfg.Web.APIHost,
		Database: dbcfg,
	}, db)

	// Start (main) API server
	logger.Info("initializing API server")

	// Create the API router
	apirouter, err := api.New(api.Config{
		Logger:        logger,
		State:         state,
		HealthTimeout: cfg.Database.HealthTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("error creating the API server instance")
		return fmt.Errorf("error creating the API server instance: %w", err)
	}
	router := apirouter.Handler()

	// Apply CORS policy
	router = applyCORSHandler(router)

	// A signal received while starting up aborts before anything is bound.
	select {
	case sig := <-signals:
		logger.WithField("signal", sig.String()).Info("termination signal received during startup")
		return fmt.Errorf("%w: %s", errStartupInterrupted, sig)
	default:
	}

	ln, err := net.Listen("tcp", cfg.Web.APIHost)
	if err != nil {
		logger.WithError(err).Error("error binding the API listener")
		return fmt.Errorf("binding %s: %w", cfg.Web.APIHost, err)
	}

	errorLog := logger.WriterLevel(logrus.WarnLevel)
	defer errorLog.Close()

	// Create the API server
	apiserver := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Web.ReadHeaderTimeout,
		ErrorLog:          log.New(errorLog, "", 0),
	}

	coordinator, err := lifecycle.New(lifecycle.Config{
		Logger:          logger,
		Server:          apiserver,
		ShutdownTimeout: cfg.Web.ShutdownTimeout,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("creating lifecycle coordinator: %w", err)
	}

	err = coordinator.Run(ln, signals)

	if cerr := apirouter.Close(); cerr != nil {
		logger.WithError(cerr).Warning("graceful shutdown of apirouter failed")
	}
	if err != nil {
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
