package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"cultura-chupistica/internal/gateway"
)

type CommandHandlers struct {
	dispatcher *gateway.Dispatcher
}

func NewCommandHandlers(d *gateway.Dispatcher) *CommandHandlers {
	return &CommandHandlers{dispatcher: d}
}

// Command accepts one command envelope and returns its response. The status
// code follows the error kind; successful commands are 200.
func (h *CommandHandlers) Command() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env gateway.CommandEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			WriteError(w, gateway.Errf(gateway.KindInvalidCommand, "malformed command envelope"))
			return
		}
		commandsTotal.Add(1)
		resp := h.dispatcher.Dispatch(r.Context(), env)
		status := http.StatusOK
		if !resp.OK {
			commandErrorsTotal.Add(1)
			status = gateway.HTTPStatus(resp.Error.Kind)
		}
		WriteJSON(w, status, resp)
	}
}

// Pinger is the slice of the archive store the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Health(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				body["status"] = "degraded"
				body["archive"] = "unreachable"
			}
		}
		WriteJSON(w, http.StatusOK, body)
	}
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, err *gateway.Error) {
	WriteJSON(w, gateway.HTTPStatus(err.Kind), gateway.Response{OK: false, Error: err})
}
