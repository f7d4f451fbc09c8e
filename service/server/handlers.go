package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode"

	"github.com/gatewatch/gatewatch/service/db"
	"github.com/gatewatch/gatewatch/service/registry"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a watch request
	maxAddressLength   = 100     // base58 addresses are 44 chars, give buffer
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// Valid base58 characters (no 0, O, I, l)
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// WatchRegistry is the slice of the registry the HTTP layer needs.
type WatchRegistry interface {
	Add(ctx context.Context, address string) (*registry.WatchedAddress, error)
	Remove(ctx context.Context, address string) (bool, error)
	List(ctx context.Context) ([]registry.WatchedAddress, error)
	Stats(ctx context.Context) (registry.Stats, error)
}

// EventStore is the slice of the persistence layer the HTTP layer needs.
type EventStore interface {
	ListActivityEvents(ctx context.Context, params db.ListActivityEventsParams) ([]*db.ActivityEvent, error)
	CountActivityEvents(ctx context.Context, ownerAddress string) (int64, error)
}

type addWatchRequest struct {
	Address string `json:"address"`
}

type watchResponse struct {
	Address      string    `json:"address"`
	Cursor       *string   `json:"cursor,omitempty"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// addWatchResponse is the 201 body: the new watch plus current occupancy so
// dashboards can render the remaining capacity without a second request.
type addWatchResponse struct {
	watchResponse
	Stats registry.Stats `json:"stats"`
}

func watchToResponse(w registry.WatchedAddress) watchResponse {
	return watchResponse{
		Address:      w.Address,
		Cursor:       w.Cursor,
		Active:       w.Active,
		RegisteredAt: w.RegisteredAt,
	}
}

type eventResponse struct {
	ActivityID         string     `json:"activity_id"`
	OwnerAddress       string     `json:"owner_address"`
	Outcome            string     `json:"outcome"`
	DeliveryClass      string     `json:"delivery_class"`
	DeliveryConfidence float64    `json:"delivery_confidence"`
	CostEstimate       int64      `json:"cost_estimate"`
	DetailCount        int        `json:"detail_count"`
	ObservedAt         *time.Time `json:"observed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func eventToResponse(e *db.ActivityEvent) eventResponse {
	return eventResponse{
		ActivityID:         e.ActivityID,
		OwnerAddress:       e.OwnerAddress,
		Outcome:            e.Outcome,
		DeliveryClass:      e.DeliveryClass,
		DeliveryConfidence: e.DeliveryConfidence,
		CostEstimate:       e.CostEstimate,
		DetailCount:        e.DetailCount,
		ObservedAt:         e.ObservedAt,
		CreatedAt:          e.CreatedAt,
	}
}

// handleAddWatch returns a handler that registers an address for monitoring.
// POST /api/v1/watches
func handleAddWatch(watches WatchRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req addWatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		watch, err := watches.Add(r.Context(), req.Address)
		switch {
		case errors.Is(err, registry.ErrInvalidAddress):
			writeError(w, "address is not a valid public key", http.StatusBadRequest)
			return
		case errors.Is(err, registry.ErrAlreadyWatched):
			writeError(w, "address is already watched", http.StatusConflict)
			return
		case errors.Is(err, registry.ErrCapacityReached):
			writeCapacityError(w, r, watches, logger)
			return
		case err != nil:
			logger.Error("failed to add watch", "address", req.Address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := addWatchResponse{watchResponse: watchToResponse(*watch)}
		stats, err := watches.Stats(r.Context())
		if err != nil {
			logger.Error("failed to get watch stats", "error", err)
		} else {
			resp.Stats = stats
		}

		logger.Info("watch added", "address", watch.Address)
		writeJSON(w, resp, http.StatusCreated)
	})
}

// handleRemoveWatch returns a handler that stops monitoring an address.
// DELETE /api/v1/watches/{address}
func handleRemoveWatch(watches WatchRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		removed, err := watches.Remove(r.Context(), address)
		if err != nil {
			logger.Error("failed to remove watch", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !removed {
			writeError(w, "watch not found", http.StatusNotFound)
			return
		}

		logger.Info("watch removed", "address", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListWatches returns a handler that lists all watched addresses.
// GET /api/v1/watches
func handleListWatches(watches WatchRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := watches.List(r.Context())
		if err != nil {
			logger.Error("failed to list watches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		stats, err := watches.Stats(r.Context())
		if err != nil {
			logger.Error("failed to get watch stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]watchResponse, len(list))
		for i, watch := range list {
			resp[i] = watchToResponse(watch)
		}

		writeJSON(w, map[string]interface{}{
			"watches": resp,
			"stats":   stats,
		}, http.StatusOK)
	})
}

// handleWatchStats returns a handler that reports registry capacity.
// GET /api/v1/watches/stats
func handleWatchStats(watches WatchRegistry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := watches.Stats(r.Context())
		if err != nil {
			logger.Error("failed to get watch stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, stats, http.StatusOK)
	})
}

// handleListEvents returns a handler that lists persisted activity events,
// newest first. Clients use this to catch up after a dropped subscription.
// GET /api/v1/events?address={address}&limit={limit}&offset={offset}
func handleListEvents(store EventStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseQueryInt(r, "limit", defaultEventsLimit)
		if err != nil || limit < 1 || limit > maxEventsLimit {
			writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxEventsLimit), http.StatusBadRequest)
			return
		}
		offset, err := parseQueryInt(r, "offset", 0)
		if err != nil || offset < 0 {
			writeError(w, "offset must be non-negative", http.StatusBadRequest)
			return
		}

		events, err := store.ListActivityEvents(r.Context(), db.ListActivityEventsParams{
			OwnerAddress: address,
			Limit:        int32(limit),
			Offset:       int32(offset),
		})
		if err != nil {
			logger.Error("failed to list events", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		total, err := store.CountActivityEvents(r.Context(), address)
		if err != nil {
			logger.Error("failed to count events", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]eventResponse, len(events))
		for i, event := range events {
			resp[i] = eventToResponse(event)
		}

		writeJSON(w, map[string]interface{}{
			"events": resp,
			"total":  total,
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeCapacityError writes the 409 capacity rejection together with the
// current occupancy, so callers can tell a full registry from a duplicate.
func writeCapacityError(w http.ResponseWriter, r *http.Request, watches WatchRegistry, logger *slog.Logger) {
	stats, err := watches.Stats(r.Context())
	if err != nil {
		logger.Error("failed to get watch stats", "error", err)
		writeError(w, "watched address capacity reached", http.StatusConflict)
		return
	}

	writeJSON(w, map[string]interface{}{
		"error":         "watched address capacity reached",
		"current_count": stats.CurrentCount,
		"max_wallets":   stats.MaxWallets,
		"can_add_more":  stats.CanAddMore,
	}, http.StatusConflict)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates an address for format and basic hygiene before it
// reaches the registry's stricter public key check.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("address must be base58")
	}

	return nil
}

func parseQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
