// Package databasetest provides an in-process fake of the SurrealDB RPC endpoint, for tests.
package databasetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Server speaks enough of the SurrealDB JSON RPC protocol for the service: signin, use, ping and query.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu               sync.Mutex
	conns            map[*websocket.Conn]struct{}
	severed          bool
	username         string
	password         string
	rejectSelection  bool
	signins          int
	pings            int
	queries          map[string]json.RawMessage
	selectedNS       string
	selectedDatabase string
}

// NewServer starts a server accepting root/root and any namespace and database.
func NewServer() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"json"},
		},
		conns:    make(map[*websocket.Conn]struct{}),
		username: "root",
		password: "root",
		queries:  make(map[string]json.RawMessage),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveRPC))
	return s
}

// URL returns the server address in the host:port form the service is configured with.
func (s *Server) URL() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

// SetCredentials changes the only accepted username and password.
func (s *Server) SetCredentials(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
}

// RejectSelection makes every "use" call fail.
func (s *Server) RejectSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSelection = true
}

// SetQueryResult makes the statement sql succeed with the given JSON result.
func (s *Server) SetQueryResult(sql string, result string) {
	s.SetQueryResponse(sql, `[{"status":"OK","time":"1ms","result":`+result+`}]`)
}

// SetQueryResponse makes the statement sql answer with raw as the whole RPC result, verbatim.
func (s *Server) SetQueryResponse(sql string, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[sql] = json.RawMessage(raw)
}

// Signins returns how many signin calls were received, successful or not.
func (s *Server) Signins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signins
}

// Pings returns how many ping calls were received.
func (s *Server) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Selected returns the namespace and database of the last successful "use" call.
func (s *Server) Selected() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedNS, s.selectedDatabase
}

// Sever drops every open client connection and refuses new ones, as if the database went away.
func (s *Server) Sever() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.severed = true
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.Sever()
	s.srv.Close()
}

type request struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result"`
	Error  *rpcError   `json:"error,omitempty"`
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/rpc" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	severed := s.severed
	s.mu.Unlock()
	if severed {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	for {
		var req request
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if err := c.WriteJSON(s.handle(req)); err != nil {
			return
		}
	}
}

func (s *Server) handle(req request) response {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := response{ID: req.ID}
	switch req.Method {
	case "signin":
		s.signins++
		var creds struct {
			User string `json:"user"`
			Pass string `json:"pass"`
		}
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &creds) != nil ||
			creds.User != s.username || creds.Pass != s.password {
			resp.Error = &rpcError{Code: -32000, Message: "There was a problem with authentication"}
			return resp
		}
		resp.Result = "token"
	case "use":
		var ns, db string
		if len(req.Params) != 2 || json.Unmarshal(req.Params[0], &ns) != nil || json.Unmarshal(req.Params[1], &db) != nil {
			resp.Error = &rpcError{Code: -32602, Message: "Invalid params"}
			return resp
		}
		if s.rejectSelection {
			resp.Error = &rpcError{Code: -32000, Message: "You don't have permission to change to the " + ns + " namespace"}
			return resp
		}
		s.selectedNS, s.selectedDatabase = ns, db
		resp.Result = nil
	case "ping":
		s.pings++
		resp.Result = nil
	case "query":
		var sql string
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &sql) != nil {
			resp.Error = &rpcError{Code: -32602, Message: "Invalid params"}
			return resp
		}
		raw, ok := s.queries[sql]
		if !ok {
			resp.Result = []interface{}{map[string]string{"status": "ERR", "result": "Parse error: unknown statement"}}
			return resp
		}
		resp.Result = raw
	default:
		resp.Error = &rpcError{Code: -32601, Message: "Method not found"}
	}
	return resp
}
