package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"taskmarket/internal/market"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps market errors onto HTTP statuses. Anything that is
// not a domain error is a 500 and gets logged.
func writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *market.Error
	if !errors.As(err, &domainErr) {
		log.Printf("internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch domainErr.Kind {
	case market.KindNotFound:
		status = http.StatusNotFound
	case market.KindValidation:
		status = http.StatusBadRequest
	case market.KindConflict, market.KindAuction:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": domainErr.Msg,
		"kind":  string(domainErr.Kind),
	})
}

// pathID parses the {id} route variable already extracted by mux.
func pathID(value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	return id, err == nil
}

// agentIDFromContext returns the authenticated agent's id placed there by
// the agent auth middleware.
func agentIDFromContext(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value("agent_id").(uuid.UUID)
	return id, ok
}
