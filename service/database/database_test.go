package database

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecdb-dev/ecdb/service/database/databasetest"
)

func testConfig(srv *databasetest.Server) Config {
	return Config{
		URL:       srv.URL(),
		Username:  "root",
		Password:  "root",
		Namespace: "main",
		Name:      "main",
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "localhost:8000", want: "ws://localhost:8000/rpc"},
		{in: "ws://localhost:8000", want: "ws://localhost:8000/rpc"},
		{in: "ws://localhost:8000/rpc", want: "ws://localhost:8000/rpc"},
		{in: "wss://db.example.com/", want: "wss://db.example.com/rpc"},
		{in: "http://127.0.0.1:8000", want: "ws://127.0.0.1:8000/rpc"},
		{in: "https://db.example.com", want: "wss://db.example.com/rpc"},
		{in: "", wantErr: true},
		{in: "ftp://db.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := endpointURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("signs in once and selects namespace and database", func(t *testing.T) {
		srv := databasetest.NewServer()
		defer srv.Close()

		cfg := testConfig(srv)
		cfg.Namespace, cfg.Name = "shop", "sales"
		db, err := New(context.Background(), cfg)
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, 1, srv.Signins())
		ns, name := srv.Selected()
		assert.Equal(t, "shop", ns)
		assert.Equal(t, "sales", name)
	})

	t.Run("unreachable server is a connection error", func(t *testing.T) {
		srv := databasetest.NewServer()
		addr := srv.URL()
		srv.Close()

		_, err := New(context.Background(), Config{URL: addr, Username: "root", Password: "root"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("invalid URL is a connection error", func(t *testing.T) {
		_, err := New(context.Background(), Config{URL: "ftp://nowhere"})
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("rejected credentials are an authentication error", func(t *testing.T) {
		srv := databasetest.NewServer()
		defer srv.Close()
		srv.SetCredentials("admin", "secret")

		_, err := New(context.Background(), testConfig(srv))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.NotErrorIs(t, err, ErrConnection)

		var rpcErr *RPCError
		assert.True(t, errors.As(err, &rpcErr))
	})

	t.Run("rejected selection is a selection error", func(t *testing.T) {
		srv := databasetest.NewServer()
		defer srv.Close()
		srv.RejectSelection()

		_, err := New(context.Background(), testConfig(srv))
		assert.ErrorIs(t, err, ErrSelection)
	})
}

func TestHealth(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.Health(context.Background()))
	assert.NoError(t, db.Ping(context.Background()))

	srv.Sever()

	require.Eventually(t, func() bool {
		return !db.Health(context.Background())
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, db.Ping(context.Background()), ErrClosed)
}

func TestHealthNeverReauthenticates(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer db.Close()

	probe := func(n int) []bool {
		results := make([]bool, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = db.Health(context.Background())
			}(i)
		}
		wg.Wait()
		return results
	}

	for _, ok := range probe(50) {
		assert.True(t, ok)
	}
	assert.Equal(t, 50, srv.Pings())

	srv.Sever()
	require.Eventually(t, func() bool {
		return !db.Health(context.Background())
	}, 2*time.Second, 10*time.Millisecond)

	for _, ok := range probe(50) {
		assert.False(t, ok)
	}
	assert.Equal(t, 1, srv.Signins())
}

func TestPingHonorsContext(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, db.Health(ctx))
	// The connection itself is unaffected by a cancelled probe.
	assert.True(t, db.Health(context.Background()))
}

func TestClose(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(context.Background()), ErrClosed)
}

func TestCustomers(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer db.Close()

	t.Run("returns every record", func(t *testing.T) {
		srv.SetQueryResult("SELECT * FROM customer", `[{"id":"customer:1","name":"Ada"},{"id":"customer:2","name":"Linus"}]`)

		customers, err := db.Customers(context.Background())
		require.NoError(t, err)
		require.Len(t, customers, 2)
		assert.JSONEq(t, `{"id":"customer:1","name":"Ada"}`, string(customers[0]))
	})

	t.Run("empty table is an empty list", func(t *testing.T) {
		srv.SetQueryResult("SELECT * FROM customer", `[]`)

		customers, err := db.Customers(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, customers)
		assert.Empty(t, customers)
	})

	t.Run("failed statement", func(t *testing.T) {
		srv.SetQueryResponse("SELECT * FROM customer", `[{"status":"ERR","time":"1ms","result":"The table 'customer' does not exist"}]`)

		_, err := db.Customers(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("malformed response", func(t *testing.T) {
		srv.SetQueryResponse("SELECT * FROM customer", `{"unexpected":true}`)

		_, err := db.Customers(context.Background())
		assert.Error(t, err)
	})
}

func TestInfo(t *testing.T) {
	srv := databasetest.NewServer()
	defer srv.Close()

	db, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer db.Close()

	srv.SetQueryResult("INFO FOR DB", `{"tables":{"customer":"DEFINE TABLE customer SCHEMALESS"}}`)

	info, err := db.Info(context.Background())
	require.NoError(t, err)

	var parsed map[string]map[string]string
	require.NoError(t, json.Unmarshal(info, &parsed))
	assert.Contains(t, parsed["tables"], "customer")
}

func TestNewHonorsDeadline(t *testing.T) {
	srv, err := databasetest.NewUnresponsive()
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = New(ctx, Config{URL: srv.URL(), Username: "root", Password: "root", Namespace: "main", Name: "main"})

	assert.ErrorIs(t, err, ErrConnection)
	assert.Less(t, time.Since(start), 2*time.Second)
}
