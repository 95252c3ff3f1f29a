package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"taskmarket/internal/audit"
	"taskmarket/internal/auth"
	"taskmarket/internal/database"
	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

// PaymentLister is the read side of the ledger exposed over HTTP.
type PaymentLister interface {
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Payment, error)
}

type AgentsHandler struct {
	db         *database.DB
	store      market.Store
	reputation *market.ReputationTracker
	payments   PaymentLister
}

func NewAgentsHandler(db *database.DB, store market.Store, reputation *market.ReputationTracker, payments PaymentLister) *AgentsHandler {
	return &AgentsHandler{db: db, store: store, reputation: reputation, payments: payments}
}

type EnrollRequest struct {
	Token        string   `json:"token"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

type EnrollResponse struct {
	AgentID uuid.UUID `json:"agent_id"`
	APIKey  string    `json:"api_key"`
}

// Enroll registers a new agent against a one-time enrollment token. The
// plaintext API key is returned exactly once.
func (h *AgentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	// Find and validate enrollment token
	var enrollmentToken models.EnrollmentToken
	err := h.db.Get(&enrollmentToken, `
		SELECT * FROM enrollment_tokens
		WHERE token = $1 AND expires_at > NOW() AND used_at IS NULL
	`, req.Token)
	if err != nil {
		http.Error(w, "Invalid or expired enrollment token", http.StatusUnauthorized)
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		log.Printf("Failed to generate API key: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}
	apiKeyHash, err := auth.HashToken(apiKey)
	if err != nil {
		log.Printf("Failed to hash API key: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}

	tx, err := h.db.Beginx()
	if err != nil {
		log.Printf("Failed to start transaction: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	var agent models.Agent
	err = tx.Get(&agent, `
		INSERT INTO agents (name, capabilities, is_active, reputation_score, api_key_hash, last_seen)
		VALUES ($1, $2, true, $3, $4, NOW())
		RETURNING *
	`, req.Name, pq.StringArray(req.Capabilities), 3.0, apiKeyHash)
	if err != nil {
		log.Printf("Failed to create agent: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}

	// Mark enrollment token as used
	if _, err := tx.Exec("UPDATE enrollment_tokens SET used_at = NOW() WHERE id = $1", enrollmentToken.ID); err != nil {
		log.Printf("Failed to mark token as used: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("Failed to commit transaction: %v", err)
		http.Error(w, "Failed to enroll agent", http.StatusInternalServerError)
		return
	}

	audit.Log(audit.EventAgentEnrolled, "", agent.ID.String(), map[string]interface{}{
		"name": req.Name,
	})
	writeJSON(w, http.StatusCreated, EnrollResponse{AgentID: agent.ID, APIKey: apiKey})
}

// Heartbeat updates the authenticated agent's last_seen timestamp
func (h *AgentsHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := h.db.Exec("UPDATE agents SET last_seen = NOW(), is_active = true WHERE id = $1", agentID); err != nil {
		log.Printf("Failed to record heartbeat for agent %s: %v", agentID, err)
		http.Error(w, "Failed to record heartbeat", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetAgent returns an agent's public profile
func (h *AgentsHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid agent ID", http.StatusBadRequest)
		return
	}

	agent, err := h.store.GetAgent(r.Context(), id)
	if err == market.ErrNotFound {
		http.Error(w, "Agent not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to get agent %s: %v", id, err)
		http.Error(w, "Failed to get agent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// ReputationHistory returns an agent's recent reputation events, newest
// first
func (h *AgentsHandler) ReputationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid agent ID", http.StatusBadRequest)
		return
	}

	events, err := h.store.ListReputationEvents(r.Context(), id, 100)
	if err != nil {
		log.Printf("Failed to list reputation events for agent %s: %v", id, err)
		http.Error(w, "Failed to list reputation events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.ReputationEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// RecomputeReputation refolds the agent's event history into its score
func (h *AgentsHandler) RecomputeReputation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Invalid agent ID", http.StatusBadRequest)
		return
	}

	score, err := h.reputation.Recompute(r.Context(), id)
	if errors.Is(err, market.ErrNotFound) {
		http.Error(w, "Agent not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to recompute reputation for agent %s: %v", id, err)
		http.Error(w, "Failed to recompute reputation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":         id,
		"reputation_score": score,
	})
}

// ListPayments returns the authenticated agent's payment history
func (h *AgentsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payments, err := h.payments.ListByAgent(r.Context(), agentID, 100)
	if err != nil {
		log.Printf("Failed to list payments for agent %s: %v", agentID, err)
		http.Error(w, "Failed to list payments", http.StatusInternalServerError)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

type CreateEnrollmentTokenRequest struct {
	Name      *string `json:"name"`
	ExpiresIn int     `json:"expires_in_hours"`
}

// CreateEnrollmentToken mints a one-time agent enrollment token. Admin only.
func (h *AgentsHandler) CreateEnrollmentToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value("claims").(*auth.Claims)
	if !ok || !claims.IsAdmin() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req CreateEnrollmentTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExpiresIn <= 0 {
		req.ExpiresIn = 24
	}

	token, err := auth.GenerateEnrollmentToken()
	if err != nil {
		log.Printf("Failed to generate enrollment token: %v", err)
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	ownerID, _ := uuid.Parse(claims.UserID)
	var created models.EnrollmentToken
	err = h.db.Get(&created, `
		INSERT INTO enrollment_tokens (name, token, owner_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, req.Name, token, ownerID, time.Now().Add(time.Duration(req.ExpiresIn)*time.Hour))
	if err != nil {
		log.Printf("Failed to create enrollment token: %v", err)
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// AgentAuthMiddleware validates agent API key
// Note: API keys are stored as bcrypt hashes, so we need to iterate through agents
// For production with many agents, consider adding a key prefix/identifier
func AgentAuthMiddleware(db *database.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, "Missing API key", http.StatusUnauthorized)
				return
			}

			// Security: Limit key length to prevent DoS
			if len(apiKey) > 256 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			// Find agent by checking API key hash
			// Only active agents seen in the last 30 days to reduce iteration
			var agents []models.Agent
			err := db.Select(&agents, `
				SELECT id, api_key_hash FROM agents
				WHERE api_key_hash IS NOT NULL AND is_active = true
				AND (last_seen IS NULL OR last_seen > NOW() - INTERVAL '30 days')
			`)
			if err != nil {
				log.Printf("Agent auth DB error: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			var matched *models.Agent
			for i := range agents {
				agent := &agents[i]
				if agent.APIKeyHash != nil {
					if err := bcrypt.CompareHashAndPassword([]byte(*agent.APIKeyHash), []byte(apiKey)); err == nil {
						matched = agent
						break
					}
				}
			}
			if matched == nil {
				// Log failed attempts (rate limit this in production)
				log.Printf("Invalid agent API key attempt")
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), "agent_id", matched.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DevAgentAuthMiddleware trusts the X-Agent-ID header. Only wired when the
// server runs without a database; never use it in production.
func DevAgentAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Agent-ID"))
		if err != nil {
			http.Error(w, "Missing or invalid X-Agent-ID", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), "agent_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
