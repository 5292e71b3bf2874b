package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"section_bidding/internal/service"
)

type BidHandler struct {
	logger         *log.Logger
	auctionService *service.AuctionService
}

func NewBidHandler(logger *log.Logger, auctionService *service.AuctionService) *BidHandler {
	return &BidHandler{
		logger:         logger,
		auctionService: auctionService,
	}
}

type PlaceBidRequest struct {
	SectionID  int64           `json:"sectionId"`
	InvestorID int64           `json:"investorId"`
	Amount     decimal.Decimal `json:"amount"`
}

func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SectionID == 0 || req.InvestorID == 0 {
		respondError(w, http.StatusBadRequest, "sectionId and investorId are required")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	bid, err := h.auctionService.PlaceBid(r.Context(), req.SectionID, req.InvestorID, req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, bid)
}

func (h *BidHandler) CancelBid(w http.ResponseWriter, r *http.Request) {
	bidID, err := uuid.Parse(mux.Vars(r)["bidId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid bid id format")
		return
	}

	if err := h.auctionService.CancelBid(r.Context(), actorFromRequest(r), bidID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
