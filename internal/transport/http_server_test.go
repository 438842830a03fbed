package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
	"github.com/loopvia/ringd/internal/registry"
)

func newTestServer(t *testing.T) (*node.Node, *httptest.Server) {
	t.Helper()
	n := node.New(identity.NodeInfo{ID: 1, Host: "http://127.0.0.1:8001", SocketPort: 9001}, registry.NewStatic(nil), nil, nil, nil)
	srv := httptest.NewServer(NewHTTPServer(n, nil).Router())
	t.Cleanup(srv.Close)
	return n, srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTPServer_Health(t *testing.T) {
	_, srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alive", body["Status"])
	require.Equal(t, float64(1), body["NodeID"])
}

func TestHTTPServer_KillBlocksGuardedRoutes(t *testing.T) {
	_, srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/kill", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/startElection", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotEmpty(t, body["error"])

	// /health and /revive remain reachable while killed.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/revive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/startElection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_SingletonElectionAndVariable(t *testing.T) {
	_, srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/variable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no leader elected", body["error"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/startElection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/variable", map[string]interface{}{"value": 7})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(7), body["value"])
	require.Equal(t, float64(1), body["leader_id"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/variable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(7), body["value"])
}

func TestHTTPServer_SetDelayIdempotent(t *testing.T) {
	n, srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/setDelay", map[string]interface{}{"delay": 0.5})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Equal(t, float64(0.5), n.State.Snapshot().Delay.Seconds())
}

func TestHTTPServer_UpdateNeighborsTriState(t *testing.T) {
	n, srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/update_neighbors", map[string]interface{}{
		"next_id": 2, "next_host": "http://127.0.0.1:8002", "next_socket_port": 9002,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, n.State.Snapshot().Next.ID)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/update_neighbors", map[string]interface{}{
		"next_id": nil, "next_host": nil, "next_socket_port": nil,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, n.State.Snapshot().Next)
}

func TestHTTPServer_JoinSingleton(t *testing.T) {
	_, srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/join", map[string]interface{}{
		"node_id": 2, "host": "http://127.0.0.1:8002", "socket_port": 9002,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["prev_id"])
	require.Equal(t, float64(1), body["next_id"])
}
