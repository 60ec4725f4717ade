// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gateway "github.com/featurebasedb/sqlgateway"
	"github.com/featurebasedb/sqlgateway/client"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	gwhttp "github.com/featurebasedb/sqlgateway/http"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const env = `
tables:
  - name: T
    connector:
      type: values
    schema:
      - name: a
        data-type: INT
      - name: d
        data-type: DOUBLE
    data:
      - [1, 1.5]
      - [2, 2.0]
`

func newClient(t *testing.T) *client.Client {
	t.Helper()
	e := gateway.NewLocalExecutor(gateway.Config{Logger: logger.NewLogfLogger(t)})
	t.Cleanup(func() { e.Close(context.Background()) })
	h, err := gwhttp.NewHandler(gwhttp.OptHandlerExecutor(e))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return client.New(client.Config{Address: srv.URL, Logger: logger.NewLogfLogger(t)})
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	require.True(t, c.Health(ctx))

	e, err := environment.ParseBytes([]byte(env))
	require.NoError(t, err)
	id, err := c.OpenSession(ctx, "s1", e)
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	_, err = c.OpenSession(ctx, "s1", nil)
	assert.True(t, errors.Is(err, gateway.ErrDuplicateSession))

	t.Run("Properties", func(t *testing.T) {
		before, err := c.GetSessionProperties(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, c.SetSessionProperty(ctx, "s1", "execution.max-table-result-rows", "5"))
		props, err := c.GetSessionProperties(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "5", props["execution.max-table-result-rows"])
		require.NoError(t, c.ResetSessionProperties(ctx, "s1"))
		after, err := c.GetSessionProperties(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("Query", func(t *testing.T) {
		desc, err := c.ExecuteQuery(ctx, "s1", "SELECT a, d FROM T")
		require.NoError(t, err)
		assert.True(t, desc.Materialized)

		var rows []string
		require.Eventually(t, func() bool {
			snap, err := c.SnapshotResult(ctx, "s1", desc.ID, 10)
			if err != nil {
				return false
			}
			if snap.Status != gateway.StatusPayload {
				return snap.Status == gateway.StatusEOS
			}
			page, err := c.RetrieveResultPage(ctx, "s1", desc.ID, 1)
			if err != nil {
				return false
			}
			rows = rows[:0]
			for _, r := range page {
				rows = append(rows, r.String())
			}
			return false
		}, 10*time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"+I[1, 1.5]", "+I[2, 2.0]"}, rows)

		info, err := c.JobStatus(ctx, "s1", desc.JobID)
		require.NoError(t, err)
		assert.Equal(t, processor.JobFinished, info.Status)
	})

	t.Run("Failure", func(t *testing.T) {
		_, err := c.ExecuteSQL(ctx, "s1", "DROP TABLE nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, gateway.ErrExecutionFailure))
		assert.True(t, errors.Is(err, gateway.ErrCatalog))
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("Catalog", func(t *testing.T) {
		res, err := c.ExecuteSQL(ctx, "s1", "SHOW TABLES")
		require.NoError(t, err)
		require.NotNil(t, res.Table)
		assert.Equal(t, []string{"T"}, res.Table.Strings())

		mods, err := c.ListModules(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"core"}, mods)

		hints, err := c.CompleteStatement(ctx, "s1", "SELECT * FROM T", 15)
		require.NoError(t, err)
		assert.Equal(t, []string{"default_catalog.default_database.T"}, hints)
	})

	t.Run("CancelQuery", func(t *testing.T) {
		desc, err := c.ExecuteQuery(ctx, "s1", "SELECT a FROM T")
		require.NoError(t, err)
		require.NoError(t, c.CancelQuery(ctx, "s1", desc.ID))
		_, err = c.RetrieveResultChanges(ctx, "s1", desc.ID)
		assert.True(t, errors.Is(err, gateway.ErrResultNotFound))
	})

	require.NoError(t, c.CloseSession(ctx, "s1"))
	_, err = c.GetSessionProperties(ctx, "s1")
	assert.True(t, errors.Is(err, gateway.ErrSessionNotFound))
}

func TestClient_Retry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"s"}`))
	}))
	defer srv.Close()

	c := client.New(client.Config{Address: srv.URL, Retries: 3})
	id, err := c.OpenSession(context.Background(), "s", nil)
	require.NoError(t, err)
	assert.Equal(t, "s", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(errors.MarshalJSON(errors.New(gateway.ErrExecutionFailure, "boom"))))
	}))
	defer srv.Close()

	c := client.New(client.Config{Address: srv.URL, Retries: 3})
	_, err := c.ExecuteSQL(context.Background(), "s", "SELECT 1")
	assert.True(t, errors.Is(err, gateway.ErrExecutionFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := client.New(client.Config{Address: addr})
	_, err := c.GetSessionProperties(context.Background(), "s")
	assert.True(t, errors.Is(err, client.ErrTransport))
}
