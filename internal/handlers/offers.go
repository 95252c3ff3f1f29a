package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"taskmarket/internal/market"
)

type OffersHandler struct {
	auction *market.AuctionCoordinator
}

func NewOffersHandler(auction *market.AuctionCoordinator) *OffersHandler {
	return &OffersHandler{auction: auction}
}

type SubmitOfferRequest struct {
	Price      int64 `json:"price"`
	ETASeconds int64 `json:"eta_seconds"`
}

// SubmitOffer places the authenticated agent's bid on a task
func (h *OffersHandler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
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

	var req SubmitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	offer, err := h.auction.SubmitOffer(r.Context(), agentID, taskID, req.Price, req.ETASeconds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}
