package handler

import (
	"log"
	"net/http"

	"section_bidding/internal/service"
)

type SeasonHandler struct {
	logger         *log.Logger
	auctionService *service.AuctionService
}

func NewSeasonHandler(logger *log.Logger, auctionService *service.AuctionService) *SeasonHandler {
	return &SeasonHandler{
		logger:         logger,
		auctionService: auctionService,
	}
}

func (h *SeasonHandler) CurrentSeason(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.auctionService.CurrentSeasonInfo())
}
