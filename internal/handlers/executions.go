package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"taskmarket/internal/market"
)

type ExecutionsHandler struct {
	store market.Store
	exec  *market.ExecutionCoordinator
}

func NewExecutionsHandler(store market.Store, exec *market.ExecutionCoordinator) *ExecutionsHandler {
	return &ExecutionsHandler{store: store, exec: exec}
}

// StartExecution transitions the authenticated agent's assigned task into
// the running phase
func (h *ExecutionsHandler) StartExecution(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}
	agentID, ok := agentIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	exec, err := h.exec.StartExecution(r.Context(), taskID, agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// CompleteExecution records the outcome reported by the assigned agent
func (h *ExecutionsHandler) CompleteExecution(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}
	agentID, ok := agentIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var outcome market.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	exec, err := h.exec.CompleteExecution(r.Context(), taskID, agentID, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// GetExecution returns the latest execution for a task
func (h *ExecutionsHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	exec, err := h.store.GetExecutionForTask(r.Context(), taskID)
	if err == market.ErrNotFound {
		http.Error(w, "No execution for task", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to get execution for task %s: %v", taskID, err)
		http.Error(w, "Failed to get execution", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
