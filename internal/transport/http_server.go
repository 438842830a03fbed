package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
)

// HTTPServer builds the gorilla/mux router for the HTTP control surface
// (§6.1), dispatching every route onto a single *node.Node.
type HTTPServer struct {
	node *node.Node
	log  log.Logger
}

// NewHTTPServer constructs an HTTPServer bound to n.
func NewHTTPServer(n *node.Node, l log.Logger) *HTTPServer {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &HTTPServer{node: n, log: log.With(l, "component", "http_server")}
}

// Router builds the mux.Router exposing every endpoint in §6.1 plus the
// [NEW] operator-facing /metrics and /dump diagnostics.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/revive", s.handleRevive).Methods(http.MethodPost)

	guarded := r.NewRoute().Subrouter()
	guarded.Use(s.killedMiddleware)
	guarded.HandleFunc("/join", s.handleJoin).Methods(http.MethodPost)
	guarded.HandleFunc("/leave", s.handleLeave).Methods(http.MethodPost)
	guarded.HandleFunc("/update_neighbors", s.handleUpdateNeighbors).Methods(http.MethodPost)
	guarded.HandleFunc("/kill", s.handleKill).Methods(http.MethodPost)
	guarded.HandleFunc("/setDelay", s.handleSetDelay).Methods(http.MethodPost)
	guarded.HandleFunc("/startElection", s.handleStartElection).Methods(http.MethodPost)
	guarded.HandleFunc("/variable", s.handleGetVariable).Methods(http.MethodGet)
	guarded.HandleFunc("/variable", s.handleSetVariable).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/dump", s.handleDump).Methods(http.MethodGet)

	return r
}

// killedMiddleware enforces §4.5's administrative rejection: a killed node
// returns 503 on every data/control path except health and revive, which
// are registered outside this subrouter.
func (s *HTTPServer) killedMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.node.State.Snapshot().Alive {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "node is administratively killed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.HealthSnapshot())
}

func (s *HTTPServer) handleDump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := DumpState(w, s.node.HealthSnapshot()); err != nil {
		level.Error(s.log).Log("msg", "failed to render dump", "err", err)
	}
}

func (s *HTTPServer) handleKill(w http.ResponseWriter, r *http.Request) {
	s.node.Kill()
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleRevive(w http.ResponseWriter, r *http.Request) {
	s.node.Revive()
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	var body delayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body"})
		return
	}
	s.node.SetDelay(time.Duration(body.Delay * float64(time.Second)))
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleStartElection(w http.ResponseWriter, r *http.Request) {
	err := s.node.Election.Start(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusOK())
	case errors.Is(err, node.ErrKilled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "node is administratively killed"})
	case errors.Is(err, node.ErrNoNext):
		writeJSON(w, http.StatusOK, errorBody{Error: "no next node in ring"})
	default:
		writeJSON(w, http.StatusOK, errorBody{Error: err.Error()})
	}
}

func (s *HTTPServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	var body joinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body"})
		return
	}

	joiner := identity.NodeInfo{ID: body.NodeID, Host: body.Host, SocketPort: body.SocketPort}
	assigned, err := s.node.Ring.Join(r.Context(), joiner)
	if err != nil {
		level.Error(s.log).Log("msg", "join failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, encodeNeighborUpdate(assigned))
}

func (s *HTTPServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.node.Ring.Leave(r.Context()); err != nil {
		level.Warn(s.log).Log("msg", "leave completed with a best-effort notification failure", "err", err)
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleUpdateNeighbors(w http.ResponseWriter, r *http.Request) {
	update, err := decodeNeighborUpdate(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body"})
		return
	}
	s.node.Ring.UpdateNeighbors(update)
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	value, servedBy, err := s.node.SharedVar.Get(r.Context())
	if err != nil {
		writeVariableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Value    int `json:"value"`
		LeaderID int `json:"leader_id"`
	}{Value: value, LeaderID: servedBy})
}

func (s *HTTPServer) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	var body variableBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body"})
		return
	}
	servedBy, err := s.node.SharedVar.Set(r.Context(), body.Value)
	if err != nil {
		writeVariableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status   string `json:"status"`
		Value    int    `json:"value"`
		LeaderID int    `json:"leader_id"`
	}{Status: "OK", Value: body.Value, LeaderID: servedBy})
}

// writeVariableError maps the shared-variable error taxonomy (§7) onto HTTP
// status codes: a killed node or an unreachable/role-rejecting leader is
// 503; a context deadline (leader timeout) is 504; the no-leader-known
// topology error is a soft 200 body.
func writeVariableError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, node.ErrKilled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "node is administratively killed"})
	case errors.Is(err, node.ErrNoLeader):
		writeJSON(w, http.StatusOK, errorBody{Error: "no leader elected"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "leader timeout; election restarted"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: fmt.Sprintf("%s; election restarted", err.Error())})
	}
}

func statusOK() interface{} {
	return struct {
		Status string `json:"status"`
	}{Status: "OK"}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
