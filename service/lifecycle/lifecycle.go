/*
Package lifecycle runs the HTTP server until a termination signal arrives, then drains it.

The coordinator moves through Starting, Serving, Draining and Stopped, in this order only. Serving begins once the
listener is bound (the caller binds it, after the database connection is established). Draining begins on the first
termination signal: the listener is closed right away, and requests already admitted run to completion.
*/
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// State of the coordinator.
type State int32

const (
	Starting State = iota
	Serving
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TerminationSignals trigger the graceful drain. Each of them behaves the same.
var TerminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT}

// NotifyTermination merges every termination signal into one channel. Call stop to restore the default behavior.
func NotifyTermination() (signals <-chan os.Signal, stop func()) {
	// Use a buffered channel because the signal package requires it.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, TerminationSignals...)
	return ch, func() { signal.Stop(ch) }
}

// Config is used to provide dependencies and configuration to the New function.
type Config struct {
	// Logger where log entries are sent
	Logger logrus.FieldLogger

	// Server is the HTTP server to run. Its Addr is ignored: the listener given to Run is used.
	Server *http.Server

	// ShutdownTimeout bounds the drain. Zero waits for in-flight requests without limit.
	ShutdownTimeout time.Duration
}

// Coordinator owns the serve loop.
type Coordinator struct {
	logger          logrus.FieldLogger
	server          *http.Server
	shutdownTimeout time.Duration

	state atomic.Int32
}

// New returns a coordinator in the Starting state.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Server == nil {
		return nil, errors.New("server is required")
	}
	if cfg.ShutdownTimeout < 0 {
		return nil, errors.New("shutdown timeout must not be negative")
	}
	return &Coordinator{
		logger:          cfg.Logger,
		server:          cfg.Server,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.WithField("state", s.String()).Info("lifecycle transition")
}

// Run serves on ln and races the serve loop against signals. It returns nil after a complete drain, and an error if
// the server stopped on its own or the drain could not complete. Run can be called once.
func (c *Coordinator) Run(ln net.Listener, signals <-chan os.Signal) error {
	if !c.state.CompareAndSwap(int32(Starting), int32(Serving)) {
		return fmt.Errorf("coordinator already %s", c.State())
	}
	c.logger.WithField("state", Serving.String()).Info("lifecycle transition")

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	go func() {
		c.logger.Infof("API listening on %s", ln.Addr())
		serverErrors <- c.server.Serve(ln)
		c.logger.Infof("stopping API server")
	}()

	select {
	case err := <-serverErrors:
		c.setState(Stopped)
		return fmt.Errorf("server error: %w", err)

	case sig := <-signals:
		c.logger.Infof("signal %v received, start shutdown", sig)
		c.setState(Draining)

		ctx := context.Background()
		if c.shutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.shutdownTimeout)
			defer cancel()
		}

		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.WithError(err).Warning("error during graceful shutdown of HTTP server")
			_ = c.server.Close()
			c.setState(Stopped)
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		c.setState(Stopped)
	}

	return nil
}
