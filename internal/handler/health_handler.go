package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"pollhub/pkg/database"
	"pollhub/pkg/logger"
	"pollhub/pkg/redis"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db     *database.PostgresDB
	cache  *redis.Client
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(db *database.PostgresDB, cache *redis.Client, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "pollhub",
		Checks:    map[string]string{},
	}
	status := http.StatusOK

	if err := h.db.Health(ctx); err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		response.Status = "unhealthy"
		response.Checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		response.Checks["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Health(ctx); err != nil {
			h.logger.WithError(err).Warn("Cache health check failed")
			response.Checks["cache"] = err.Error()
		} else {
			response.Checks["cache"] = "ok"
		}
	} else {
		response.Checks["cache"] = "disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
