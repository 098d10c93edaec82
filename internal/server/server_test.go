package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/script"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	srv := New(Options{
		Driver:      "sqlite",
		DSN:         ":memory:",
		Placeholder: engine.PlaceholderQuestion,
		SessionIdle: time.Minute,
	})
	t.Cleanup(func() { srv.Close() })
	return srv
}

func postJSON(t *testing.T, url string, in, out any) int {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHTTPSessionLifecycle(t *testing.T) {
	srv := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var opened OpenResponse
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/session", OpenRequest{}, &opened))
	require.NotEmpty(t, opened.Session)

	call := func(st script.Step) *CallResponse {
		var resp CallResponse
		postJSON(t, ts.URL+"/api/call", CallRequest{Session: opened.Session, Step: st}, &resp)
		return &resp
	}
	resp := call(script.Step{Op: "open", Cursor: "c"})
	require.Empty(t, resp.Error)
	resp = call(script.Step{Op: "parse", Cursor: "c", SQL: "select :n + 1"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "select ?1 + 1", resp.Text)
	require.Empty(t, call(script.Step{Op: "bind", Cursor: "c", Name: "n", Value: 41}).Error)
	require.Empty(t, call(script.Step{Op: "define", Cursor: "c", Position: 1, Type: "int4"}).Error)
	require.Empty(t, call(script.Step{Op: "execute", Cursor: "c"}).Error)

	resp = call(script.Step{Op: "fetch", Cursor: "c"})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Count)
	assert.Equal(t, int64(1), *resp.Count)

	resp = call(script.Step{Op: "value", Cursor: "c", Position: 1})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Value)
	assert.Equal(t, "integer", resp.Value.Type)
	assert.Equal(t, float64(42), resp.Value.Value)

	resp = call(script.Step{Op: "value", Cursor: "c", Position: 2})
	assert.Contains(t, resp.Error, "invalid column position")

	res, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	res.Body.Close()
	assert.Equal(t, float64(1), status["sessions"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/session?id="+opened.Session, nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Zero(t, srv.SessionCount())

	resp = call(script.Step{Op: "fetch", Cursor: "c"})
	assert.Contains(t, resp.Error, "unknown session")
}

func TestHTTPRejectsBadRequests(t *testing.T) {
	srv := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/call")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Post(ts.URL+"/api/call", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/session?id=nope", nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGRPCBulkInsert(t *testing.T) {
	srv := newServer(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	srv.RegisterGRPC(gs)
	go gs.Serve(lis)
	defer gs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := Dial(lis.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	id, err := c.OpenSession(ctx, 0)
	require.NoError(t, err)
	do := func(st script.Step) *CallResponse {
		resp, err := c.Call(ctx, &CallRequest{Session: id, Step: st})
		require.NoError(t, err)
		require.Emptyf(t, resp.Error, "op %s", st.Op)
		return resp
	}
	do(script.Step{Op: "exec_sql", SQL: "create table t (a integer)"})
	do(script.Step{Op: "open", Cursor: "ins"})
	do(script.Step{Op: "parse", Cursor: "ins", SQL: "insert into t values (:a)"})
	do(script.Step{Op: "bind_array", Cursor: "ins", Name: "a", Type: "int4", Values: []any{1, 2, 3}})
	resp := do(script.Step{Op: "execute", Cursor: "ins"})
	require.NotNil(t, resp.Count)
	assert.Equal(t, int64(3), *resp.Count)

	do(script.Step{Op: "open", Cursor: "q"})
	do(script.Step{Op: "parse", Cursor: "q", SQL: "select a from t order by a"})
	do(script.Step{Op: "define_array", Cursor: "q", Position: 1, Type: "int4", Rows: 5, IndexBase: 0})
	do(script.Step{Op: "execute", Cursor: "q"})
	resp = do(script.Step{Op: "fetch", Cursor: "q"})
	assert.Equal(t, int64(3), *resp.Count)
	resp = do(script.Step{Op: "array", Cursor: "q", Position: 1})
	require.NotNil(t, resp.Array)
	assert.Equal(t, 0, resp.Array.Lower)
	require.Len(t, resp.Array.Values, 3)
	assert.Equal(t, float64(3), resp.Array.Values[2].Value)

	require.NoError(t, c.CloseSession(ctx, id))
	assert.Error(t, c.CloseSession(ctx, id))
}

func TestReapIdleSessions(t *testing.T) {
	srv := newServer(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return now }
	ctx := context.Background()

	a, err := srv.OpenSession(ctx, &OpenRequest{})
	require.NoError(t, err)
	require.Empty(t, a.Error)
	now = now.Add(45 * time.Second)
	b, err := srv.OpenSession(ctx, &OpenRequest{})
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, srv.Reap())
	assert.Equal(t, 1, srv.SessionCount())
	resp, _ := srv.Call(ctx, &CallRequest{Session: a.Session, Step: script.Step{Op: "open", Cursor: "c"}})
	assert.Contains(t, resp.Error, "unknown session")
	resp, _ = srv.Call(ctx, &CallRequest{Session: b.Session, Step: script.Step{Op: "open", Cursor: "c"}})
	assert.Empty(t, resp.Error)
}

func TestStartReaper(t *testing.T) {
	srv := newServer(t)
	assert.Error(t, srv.StartReaper("not a schedule"))
	require.NoError(t, srv.StartReaper("@every 1h"))
	require.NoError(t, srv.Close())
}
