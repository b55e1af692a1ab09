package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/maltedev/autoria-scraper/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500

	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type ListingReader interface {
	Get(ctx context.Context, url string) (*models.Listing, error)
	List(ctx context.Context, limit, offset int) ([]*models.Listing, error)
	Count(ctx context.Context) (int, error)
}

// OutboxStats is implemented by the postgres outbox. Nil when events are off.
type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	listings ListingReader
	runs     *RunManager
	outbox   OutboxStats
	defaults RunRequest
	logger   *slog.Logger
}

func NewHandlers(listings ListingReader, runs *RunManager, outbox OutboxStats, defaults RunRequest, logger *slog.Logger) *Handlers {
	return &Handlers{
		listings: listings,
		runs:     runs,
		outbox:   outbox,
		defaults: defaults,
		logger:   logger.With("component", "api"),
	}
}

// ListListingsResponse is one page of listings, newest discovery first.
type ListListingsResponse struct {
	Listings []*models.Listing `json:"listings"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// RunRequest selects the page range of a run. Zero fields take the configured defaults.
type RunRequest struct {
	StartPage int `json:"start_page"`
	StopPage  int `json:"stop_page"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	count, err := h.listings.Count(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "listing store unavailable",
		})
		return
	}
	health["listings"] = count

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox status", "error", err)
		} else {
			pending := counts["pending"] + counts["failed"]
			deadLetter := counts["dead_letter"]
			health["outbox"] = map[string]any{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterFailThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) ListListings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	listings, err := h.listings.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list listings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}

	total, err := h.listings.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count listings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to count listings")
		return
	}

	h.respondJSON(w, http.StatusOK, ListListingsResponse{
		Listings: listings,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// LookupListing finds a listing by its detail-page URL.
func (h *Handlers) LookupListing(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	listing, err := h.listings.Get(r.Context(), url)
	if errors.Is(err, models.ErrListingNotFound) {
		h.respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get listing", "error", err, "url", url)
		h.respondError(w, http.StatusInternalServerError, "failed to get listing")
		return
	}

	h.respondJSON(w, http.StatusOK, listing)
}

// StartRun starts a pipeline run in the background.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req := RunRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.StartPage == 0 {
		req.StartPage = h.defaults.StartPage
	}
	if req.StopPage == 0 {
		req.StopPage = h.defaults.StopPage
	}

	run, err := h.runs.Start(req.StartPage, req.StopPage)
	switch {
	case errors.Is(err, models.ErrInvalidRange):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrRunInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, run)
}

func (h *Handlers) LatestRun(w http.ResponseWriter, r *http.Request) {
	run := h.runs.Latest()
	if run == nil {
		h.respondError(w, http.StatusNotFound, "no run yet")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
