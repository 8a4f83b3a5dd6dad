package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/property-crawler/internal/crawler"
)

// RunSource exposes the crawl currently owned by a controller.
type RunSource interface {
	CurrentRun() (*crawler.CrawlRun, bool)
}

// OutboxStats reports the backlog of the outbox relay.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

// ListingCounter reports how many listings the store holds.
type ListingCounter interface {
	CountListings(ctx context.Context) (int64, error)
}

// SourceCounter breaks the stored listings down by the page they came from.
// Stores that implement it get a by_source section in the stats response.
type SourceCounter interface {
	CountBySource(ctx context.Context) (map[string]int64, error)
}

// Thresholds for the health endpoint.
const (
	pendingWarnThreshold   = 1000
	deadLetterErrThreshold = 100
	healthQueryTimeout     = 5 * time.Second
)

type Handlers struct {
	runs     RunSource
	outbox   OutboxStats
	listings ListingCounter
	logger   *slog.Logger
}

// NewHandlers builds handlers. outbox and listings may be nil when the
// configured store does not provide them.
func NewHandlers(runs RunSource, outbox OutboxStats, listings ListingCounter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runs:     runs,
		outbox:   outbox,
		listings: listings,
		logger:   logger,
	}
}

// Health reports liveness plus the outbox backlog when one is configured.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}
	status := http.StatusOK

	if h.outbox != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthQueryTimeout)
		defer cancel()

		pendingCount, err := h.outbox.GetPendingCount(ctx)
		if err != nil {
			h.logger.Error("failed to get pending count", "error", err)
		}
		deadLetterCount, err := h.outbox.GetDeadLetterCount(ctx)
		if err != nil {
			h.logger.Error("failed to get dead letter count", "error", err)
		}

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > deadLetterErrThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// GetCurrentRun returns the summary of the active or last finished run.
func (h *Handlers) GetCurrentRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.CurrentRun()
	if !ok {
		h.respondError(w, http.StatusNotFound, "no crawl run started")
		return
	}

	h.respondJSON(w, http.StatusOK, run.Summary())
}

// StatsResponse combines run counters with the store totals.
type StatsResponse struct {
	Run           *crawler.Stats   `json:"run,omitempty"`
	ListingsTotal *int64           `json:"listings_total,omitempty"`
	BySource      map[string]int64 `json:"by_source,omitempty"`
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	if run, ok := h.runs.CurrentRun(); ok {
		stats := run.Stats()
		resp.Run = &stats
	}

	if h.listings != nil {
		total, err := h.listings.CountListings(r.Context())
		if err != nil {
			h.logger.Error("failed to count listings", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.ListingsTotal = &total

		if sc, ok := h.listings.(SourceCounter); ok {
			bySource, err := sc.CountBySource(r.Context())
			if err != nil {
				h.logger.Error("failed to count listings by source", "error", err)
				h.respondError(w, http.StatusInternalServerError, "failed to get stats")
				return
			}
			resp.BySource = bySource
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
