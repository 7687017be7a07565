package lifecycle

import (
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, h http.Handler, shutdownTimeout time.Duration) (*Coordinator, net.Listener) {
	t.Helper()

	logger, _ := test.NewNullLogger()
	c, err := New(Config{
		Logger:          logger,
		Server:          &http.Server{Handler: h, ReadHeaderTimeout: time.Second},
		ShutdownTimeout: shutdownTimeout,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return c, ln
}

func startRun(c *Coordinator, ln net.Listener, signals <-chan os.Signal) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ln, signals)
	}()
	return done
}

func waitState(t *testing.T, c *Coordinator, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == s }, 2*time.Second, 5*time.Millisecond)
}

func TestNew(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := New(Config{Server: &http.Server{}})
	assert.Error(t, err)

	_, err = New(Config{Logger: logger})
	assert.Error(t, err)

	_, err = New(Config{Logger: logger, Server: &http.Server{}, ShutdownTimeout: -time.Second})
	assert.Error(t, err)

	c, err := New(Config{Logger: logger, Server: &http.Server{}})
	require.NoError(t, err)
	assert.Equal(t, Starting, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "serving", Serving.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestRunDrainsInFlightRequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte("done"))
	})

	c, ln := newCoordinator(t, h, 0)
	addr := ln.Addr().String()
	signals := make(chan os.Signal, 1)
	runDone := startRun(c, ln, signals)
	waitState(t, c, Serving)

	type result struct {
		status int
		body   string
		err    error
	}
	inflight := make(chan result, 1)
	go func() {
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		resp, err := client.Get("http://" + addr + "/")
		if err != nil {
			inflight <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		inflight <- result{status: resp.StatusCode, body: string(body), err: err}
	}()

	<-entered
	signals <- syscall.SIGTERM
	waitState(t, c, Draining)

	// The listener is gone, new connections are refused.
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return false
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// Draining waits for the admitted request.
	select {
	case err := <-runDone:
		t.Fatalf("Run returned before the in-flight request completed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	res := <-inflight
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "done", res.body)

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the drain")
	}
	assert.Equal(t, Stopped, c.State())
}

func TestRunEachTerminationSignal(t *testing.T) {
	for _, sig := range TerminationSignals {
		t.Run(sig.String(), func(t *testing.T) {
			c, ln := newCoordinator(t, http.NotFoundHandler(), 0)
			signals := make(chan os.Signal, 1)
			runDone := startRun(c, ln, signals)
			waitState(t, c, Serving)

			signals <- sig

			select {
			case err := <-runDone:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return")
			}
			assert.Equal(t, Stopped, c.State())
		})
	}
}

func TestRunServerError(t *testing.T) {
	c, ln := newCoordinator(t, http.NotFoundHandler(), 0)
	require.NoError(t, ln.Close())

	err := c.Run(ln, make(chan os.Signal))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
	assert.Equal(t, Stopped, c.State())
}

func TestRunOnlyOnce(t *testing.T) {
	c, ln := newCoordinator(t, http.NotFoundHandler(), 0)
	signals := make(chan os.Signal, 1)
	runDone := startRun(c, ln, signals)
	waitState(t, c, Serving)

	other, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer other.Close()
	assert.Error(t, c.Run(other, signals))

	signals <- os.Interrupt
	assert.NoError(t, <-runDone)
}

func TestRunBoundedDrain(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})

	c, ln := newCoordinator(t, h, 50*time.Millisecond)
	addr := ln.Addr().String()
	signals := make(chan os.Signal, 1)
	runDone := startRun(c, ln, signals)
	waitState(t, c, Serving)

	go func() {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	<-entered
	signals <- syscall.SIGQUIT

	select {
	case err := <-runDone:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not stop server gracefully")
	case <-time.After(2 * time.Second):
		t.Fatal("bounded drain did not return")
	}
	assert.Equal(t, Stopped, c.State())
}

func TestNotifyTermination(t *testing.T) {
	signals, stop := NotifyTermination()
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Skipf("can't signal own process: %v", err)
	}

	select {
	case sig := <-signals:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}
