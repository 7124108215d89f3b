package control

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
)

// mcpRequest is the tool-call protocol envelope accepted on POST /mcp.
// Tool names match the fifteen meta-tools of spec §4.6.
type mcpRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type mcpResponse struct {
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// handleMCP implements spec §6.1's three /mcp verbs.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodGet:
		s.handleMCPStream(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	sess, ok := s.sessions.Touch(sessionID)
	if !ok {
		opened, err := s.sessions.Open()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, mcpResponse{Error: err.Error(), Kind: "conflict"})
			return
		}
		sess = opened
	}
	w.Header().Set(SessionHeader, sess.ID)

	var req mcpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, mcpResponse{Error: "malformed request body", Kind: "bad_input"})
		return
	}

	result, err := s.dispatch(r.Context(), req.Tool, req.Args, sess.ID)
	if err != nil {
		// spec §7: a meta-tool failure still carries the request to completion
		// at the HTTP level — the tool protocol, not the transport, reports the
		// error. Only malformed requests and session-admission failures above
		// are genuine protocol-level problems that warrant a non-200 status.
		writeJSON(w, http.StatusOK, mcpResponse{Error: err.Error(), Kind: kindOf(err), IsError: true})
		return
	}
	writeJSON(w, http.StatusOK, mcpResponse{Result: result})
}

func (s *Server) handleMCPStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if _, ok := s.sessions.Get(sessionID); !ok {
		http.Error(w, "unknown session id", http.StatusNotFound)
		return
	}
	s.streamEvents(w, r, func(eventType string) bool {
		return true // per-session filtering can be layered on later; all bus events pass through today
	})
}

func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if !s.sessions.Close(sessionID) {
		http.Error(w, "unknown session id", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth implements GET /health (spec §6.1).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	workers, _ := s.facade.ListWorkers()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"mode":     string(s.cfg.Mode),
		"sessions": s.sessions.Count(),
		"workers":  len(workers),
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleAPISessions implements GET /api/sessions (spec §6.1).
func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

// handleAPILogs implements GET /api/logs/<base> (spec §6.1): the stderr
// tail for a LOCAL worker.
func (s *Server) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if base == "" {
		http.Error(w, "missing worker name", http.StatusBadRequest)
		return
	}
	snap, ok := s.sup.Get(base)
	if !ok {
		http.Error(w, "unknown worker", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      base,
		"transport": snap.Config.Transport,
		"lines":     snap.StderrLines,
	})
}

// handleAPIConfig implements GET /api/config (spec §6.1).
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Redacted())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func kindOf(err error) string {
	for _, k := range []swarmerr.Kind{
		swarmerr.BadInput, swarmerr.NotFound, swarmerr.Conflict, swarmerr.SpawnFailed,
		swarmerr.NotConnected, swarmerr.Timeout, swarmerr.WorkerError, swarmerr.Cancelled, swarmerr.Internal,
	} {
		if swarmerr.Is(err, k) {
			return string(k)
		}
	}
	return string(swarmerr.Internal)
}
