package challenge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSolver(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/v1"}, nil)
}

func TestSolveReturnsCookiesAndAgent(t *testing.T) {
	t.Parallel()

	var got solveRequest
	c := newSolver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","message":"Challenge solved!","solution":{
			"url":"https://reserva.be/saunayogan","status":200,
			"cookies":[{"name":"cf_clearance","value":"tok","domain":".reserva.be","path":"/","expiry":1767225600,"httpOnly":true,"secure":true,"sameSite":"None"}],
			"userAgent":"Mozilla/5.0 solver","response":"<html></html>"}}`))
	})

	sol, err := c.Solve(context.Background(), "https://reserva.be/saunayogan", 60*time.Second)
	require.NoError(t, err)
	require.Equal(t, "request.get", got.Cmd)
	require.Equal(t, int64(60000), got.MaxTimeout)
	require.Equal(t, "Mozilla/5.0 solver", sol.UserAgent)
	require.Len(t, sol.Cookies, 1)
	require.Equal(t, "cf_clearance", sol.Cookies[0].Name)
	require.Equal(t, ".reserva.be", sol.Cookies[0].Domain)
	require.InDelta(t, 1767225600, sol.Cookies[0].Expires, 0.5)
	require.True(t, sol.Cookies[0].HTTPOnly)
}

func TestSolveReportsSolverError(t *testing.T) {
	t.Parallel()

	c := newSolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"Error solving the challenge. Timeout after 60.0 seconds."}`))
	})
	_, err := c.Solve(context.Background(), "https://reserva.be/saunayogan", time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Timeout after")
	require.NotErrorIs(t, err, ErrSolverUnavailable)
}

func TestSolveWithoutEndpoint(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil)
	require.False(t, c.Available(context.Background()))
	_, err := c.Solve(context.Background(), "https://reserva.be", time.Second)
	require.ErrorIs(t, err, ErrSolverUnavailable)
}

func TestSolveUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{URL: url + "/v1"}, nil)
	require.False(t, c.Available(context.Background()))
	_, err := c.Solve(context.Background(), "https://reserva.be", time.Second)
	require.ErrorIs(t, err, ErrSolverUnavailable)
}

func TestAvailableProbesHealth(t *testing.T) {
	t.Parallel()

	c := newSolver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	require.True(t, c.Available(context.Background()))
}
