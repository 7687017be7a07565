/*
Package database holds the single authenticated session the service keeps against the remote SurrealDB server.

The session is established once by New, before the HTTP layer exists, and is then shared read-only by every request
handler. There is no reconnection logic: if the server goes away, every following call fails and the readiness probe
reports it, until the process is restarted.

Example:

	db, err := database.New(ctx, database.Config{
		URL:       "localhost:8000",
		Username:  "root",
		Password:  "root",
		Namespace: "main",
		Name:      "main",
	})
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
*/
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Startup failures. New wraps the underlying cause with exactly one of these, so callers can use errors.Is.
var (
	ErrConnection     = errors.New("cannot open connection to database")
	ErrAuthentication = errors.New("database rejected credentials")
	ErrSelection      = errors.New("cannot select namespace/database")
)

// Config contains the connection parameters of the remote database.
type Config struct {
	// URL of the server. "localhost:8000", "ws://localhost:8000" and "ws://localhost:8000/rpc" are equivalent.
	URL       string
	Username  string
	Password  string
	Namespace string
	Name      string
}

// AppDatabase is the high level interface for the remote database
type AppDatabase interface {
	// Ping issues a single round-trip against the live connection.
	Ping(ctx context.Context) error

	// Health reports whether Ping currently succeeds. It never returns an error.
	Health(ctx context.Context) bool

	// Customers lists every record of the customer table.
	Customers(ctx context.Context) ([]json.RawMessage, error)

	// Info returns the result of INFO FOR DB on the selected database.
	Info(ctx context.Context) (json.RawMessage, error)

	// Close releases the transport. It is safe to call more than once.
	Close() error
}

type appdbimpl struct {
	c         *rpcConn
	namespace string
	name      string
}

// New opens the transport, signs in and selects the namespace and database, in this order. Any failure aborts the
// whole sequence and closes whatever was opened: there is no partially initialized connection.
func New(ctx context.Context, cfg Config) (AppDatabase, error) {
	endpoint, err := endpointURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c, err := dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if _, err := c.call(ctx, "signin", signinParams{User: cfg.Username, Pass: cfg.Password}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if _, err := c.call(ctx, "use", cfg.Namespace, cfg.Name); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %w", ErrSelection, err)
	}

	return &appdbimpl{
		c:         c,
		namespace: cfg.Namespace,
		name:      cfg.Name,
	}, nil
}

type signinParams struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

func (db *appdbimpl) Ping(ctx context.Context) error {
	_, err := db.c.call(ctx, "ping")
	return err
}

func (db *appdbimpl) Health(ctx context.Context) bool {
	return db.Ping(ctx) == nil
}

func (db *appdbimpl) Close() error {
	return db.c.Close()
}
