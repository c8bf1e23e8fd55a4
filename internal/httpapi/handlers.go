// Package httpapi is the agent dispatch surface: one POST route per
// registered agent, the listing endpoint, and the health and readiness
// probes. Every error response uses the shared envelope with a machine code
// and a recoverability flag.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LLM-Dev-Ops/evalbench/internal/agents"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
	"github.com/LLM-Dev-Ops/evalbench/internal/gateway"
)

// maxBodyBytes caps agent input documents.
const maxBodyBytes = 10 << 20

type errorBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, recoverable bool) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message, Recoverable: recoverable}})
}

// AgentDispatchHandler runs the agent named in the URL against the request
// body and returns its decision id and outputs.
func AgentDispatchHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")

		if d.Gateway != nil && d.Gateway.BreakerState() == gateway.Open {
			writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
				"decision store is unreachable", true)
			return
		}

		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), true)
			return
		}

		resp, err := d.Service.Dispatch(r.Context(), agentID, body)
		if err != nil {
			respondDispatchError(w, d.Logger, agentID, err)
			return
		}

		w.Header().Set("X-Agent-Id", resp.AgentID)
		w.Header().Set("X-Agent-Version", resp.AgentVersion)
		w.Header().Set("X-Decision-Id", resp.DecisionID)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"decision_id": resp.DecisionID,
			"data":        resp.Data,
		})
	}
}

func respondDispatchError(w http.ResponseWriter, logger *slog.Logger, agentID string, err error) {
	var verr *eval.ValidationError
	switch {
	case errors.Is(err, agents.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, "UNKNOWN_AGENT", "no agent registered with id "+agentID, false)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), true)
	default:
		logger.Error("agent execution failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "EXECUTION_ERROR", "agent execution failed", false)
	}
}

func readBody(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.New("request body must be a JSON document")
	}
	return raw, nil
}

// AgentsListHandler lists the registered agents.
func AgentsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"agents":  d.Service.Registry().List(),
		})
	}
}

// HealthHandler reports liveness gated on the latest decision store probe:
// healthy while the most recent probe succeeded, 503 otherwise.
func HealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if d.Gateway != nil && !d.Gateway.Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	}
}

// ReadyHandler reports readiness, including the decision store probe.
func ReadyHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK
		if err := d.Gateway.CheckHealth(r.Context()); err != nil {
			checks["ruvector_service"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["ruvector_service"] = "ok"
		}
		writeJSON(w, status, map[string]any{
			"status": map[int]string{http.StatusOK: "ready", http.StatusServiceUnavailable: "not_ready"}[status],
			"checks": checks,
		})
	}
}
