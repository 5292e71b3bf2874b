package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"section_bidding/internal/service"
)

// SetupRoutes wires the bidding REST surface.
func SetupRoutes(logger *log.Logger, auctionService *service.AuctionService) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheck).Methods("GET")

	bidHandler := NewBidHandler(logger, auctionService)
	sectionHandler := NewSectionHandler(logger, auctionService)
	seasonHandler := NewSeasonHandler(logger, auctionService)

	bidding := router.PathPrefix("/bidding").Subrouter()
	bidding.HandleFunc("/bids", bidHandler.PlaceBid).Methods("POST")
	bidding.HandleFunc("/bids/{bidId}", bidHandler.CancelBid).Methods("DELETE")
	bidding.HandleFunc("/sections/{id}", sectionHandler.GetSection).Methods("GET")
	bidding.HandleFunc("/sections/{id}/winner", sectionHandler.GetWinner).Methods("GET")
	bidding.HandleFunc("/sections/{id}/bids", sectionHandler.ListBids).Methods("GET")
	bidding.HandleFunc("/sections/{id}/close", sectionHandler.CloseSection).Methods("POST")
	bidding.HandleFunc("/season/current", seasonHandler.CurrentSeason).Methods("GET")

	router.Use(loggingMiddleware(logger))

	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, service.ErrSectionNotFound),
		errors.Is(err, service.ErrInvestorNotFound),
		errors.Is(err, service.ErrBidNotFound),
		errors.Is(err, service.ErrNoWinner):
		statusCode = http.StatusNotFound
	case errors.Is(err, service.ErrSectionClosed),
		errors.Is(err, service.ErrDeadlinePassed),
		errors.Is(err, service.ErrBidTooLow),
		errors.Is(err, service.ErrWinnerBidImmutable),
		errors.Is(err, service.ErrAlreadyClosed):
		statusCode = http.StatusBadRequest
	case errors.Is(err, service.ErrNotPermitted):
		statusCode = http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		statusCode = http.StatusConflict
	default:
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}
	respondError(w, statusCode, err.Error())
}

// actorFromRequest derives the acting party from headers set by the upstream
// auth middleware. Authentication itself is out of scope here.
func actorFromRequest(r *http.Request) service.Actor {
	actor := service.Actor{}
	if v := r.Header.Get("X-Investor-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			actor.InvestorID = id
		}
	}
	actor.Admin = r.Header.Get("X-Admin") == "true"
	return actor
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func loggingMiddleware(logger *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Printf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
		})
	}
}
