package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"taskmarket/internal/audit"
	"taskmarket/internal/auth"
	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

type TasksHandler struct {
	store   market.Store
	auction *market.AuctionCoordinator
	bus     market.Bus
}

func NewTasksHandler(store market.Store, auction *market.AuctionCoordinator, bus market.Bus) *TasksHandler {
	if bus == nil {
		bus = market.NopBus{}
	}
	return &TasksHandler{store: store, auction: auction, bus: bus}
}

type CreateTaskRequest struct {
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Budget               int64      `json:"budget"`
	RequiredCapabilities []string   `json:"required_capabilities"`
	Deadline             *time.Time `json:"deadline"`
	// StartAuction opens the bidding window immediately after creation.
	StartAuction bool `json:"start_auction"`
}

// CreateTask creates a new open task
func (h *TasksHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.Budget <= 0 {
		http.Error(w, "Budget must be positive", http.StatusBadRequest)
		return
	}
	if req.Deadline != nil && !req.Deadline.After(time.Now()) {
		http.Error(w, "Deadline must be in the future", http.StatusBadRequest)
		return
	}

	now := time.Now()
	task := &models.Task{
		ID:                   uuid.New(),
		Title:                req.Title,
		Description:          req.Description,
		Status:               models.TaskOpen,
		Budget:               req.Budget,
		RequiredCapabilities: req.RequiredCapabilities,
		Deadline:             req.Deadline,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if claims, ok := r.Context().Value("claims").(*auth.Claims); ok {
		if ownerID, err := uuid.Parse(claims.UserID); err == nil {
			task.OwnerID = &ownerID
		}
	}

	if err := h.store.CreateTask(r.Context(), task); err != nil {
		log.Printf("Failed to create task: %v", err)
		http.Error(w, "Failed to create task", http.StatusInternalServerError)
		return
	}
	audit.Log(audit.EventTaskCreated, ownerString(task.OwnerID), task.ID.String(), nil)
	h.bus.Publish(market.EventTaskCreated, map[string]interface{}{
		"task_id": task.ID,
		"title":   task.Title,
		"budget":  task.Budget,
	})

	if req.StartAuction {
		if err := h.auction.StartAuction(r.Context(), task.ID); err != nil {
			log.Printf("Failed to start auction for new task %s: %v", task.ID, err)
		} else {
			task.Status = models.TaskInAuction
		}
	}

	writeJSON(w, http.StatusCreated, task)
}

// ListTasks returns tasks, optionally filtered by status
func (h *TasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))

	tasks, err := h.store.ListTasks(r.Context(), status, 100)
	if err != nil {
		log.Printf("Failed to list tasks: %v", err)
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask returns a single task, including auction countdown when a window
// is open.
func (h *TasksHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err == market.ErrNotFound {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to get task %s: %v", id, err)
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}

	resp := struct {
		*models.Task
		AuctionRemainingMS *int64 `json:"auction_remaining_ms,omitempty"`
	}{Task: task, AuctionRemainingMS: h.auction.TimeRemaining(id)}
	writeJSON(w, http.StatusOK, resp)
}

// StartAuction opens the bidding window for an open task
func (h *TasksHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	if err := h.auction.StartAuction(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	audit.Log(audit.EventAuctionStarted, claimsUser(r), id.String(), nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "in_auction",
		"remaining_ms": h.auction.TimeRemaining(id),
	})
}

// CancelAuction closes the bidding window without a winner
func (h *TasksHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	if err := h.auction.CancelAuction(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	audit.Log(audit.EventAuctionCancelled, claimsUser(r), id.String(), nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ListTaskOffers returns the offers on a task, optionally filtered by status
func (h *TasksHandler) ListTaskOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	offers, err := h.store.ListOffersByTask(r.Context(), id, models.OfferStatus(r.URL.Query().Get("status")))
	if err != nil {
		log.Printf("Failed to list offers for task %s: %v", id, err)
		http.Error(w, "Failed to list offers", http.StatusInternalServerError)
		return
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func ownerString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func claimsUser(r *http.Request) string {
	if claims, ok := r.Context().Value("claims").(*auth.Claims); ok {
		return claims.UserID
	}
	return ""
}
