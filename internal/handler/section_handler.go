package handler

import (
	"log"
	"net/http"

	"section_bidding/internal/models"
	"section_bidding/internal/service"
)

type SectionHandler struct {
	logger         *log.Logger
	auctionService *service.AuctionService
}

func NewSectionHandler(logger *log.Logger, auctionService *service.AuctionService) *SectionHandler {
	return &SectionHandler{
		logger:         logger,
		auctionService: auctionService,
	}
}

func (h *SectionHandler) GetSection(w http.ResponseWriter, r *http.Request) {
	sectionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid section id format")
		return
	}

	sec, err := h.auctionService.GetSection(r.Context(), sectionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sec)
}

func (h *SectionHandler) GetWinner(w http.ResponseWriter, r *http.Request) {
	sectionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid section id format")
		return
	}

	winner, err := h.auctionService.GetSectionWinner(r.Context(), sectionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, winner)
}

func (h *SectionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	sectionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid section id format")
		return
	}

	bids, err := h.auctionService.ListSectionBids(r.Context(), sectionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}

	respondJSON(w, http.StatusOK, bids)
}

func (h *SectionHandler) CloseSection(w http.ResponseWriter, r *http.Request) {
	sectionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid section id format")
		return
	}

	sec, err := h.auctionService.CloseSection(r.Context(), actorFromRequest(r), sectionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sec)
}
