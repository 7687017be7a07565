// Package appstate bundles the resolved configuration with the database connection. A State is built once, after
// the connection is established, and is only read afterwards: handlers share the same *State without locking.
package appstate

import (
	"github.com/ecdb-dev/ecdb/service/database"
)

// Config is the resolved configuration echoed into the state.
type Config struct {
	// BindAddr is the address the HTTP listener is bound to
	BindAddr string

	Database database.Config
}

// State is immutable after New.
type State struct {
	config Config
	db     database.AppDatabase
}

// New returns the state for an already initialized connection. It performs no I/O.
func New(cfg Config, db database.AppDatabase) *State {
	return &State{
		config: cfg,
		db:     db,
	}
}

// Config returns a copy of the configuration.
func (s *State) Config() Config {
	return s.config
}

// DB returns the shared connection.
func (s *State) DB() database.AppDatabase {
	return s.db
}
