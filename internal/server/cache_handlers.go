package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/Sternrassler/bookshelf-web/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// maxRequestBody caps the JSON bodies accepted by the cache and webhook endpoints.
const maxRequestBody = 1 << 20

// limitBody caps the request body at maxRequestBody.
func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// getCacheStats handles GET /api/cache.
func (s *Server) getCacheStats(c *gin.Context) {
	stats, err := s.deps.Invalidation.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Error getting cache stats")
		respondError(c, http.StatusInternalServerError, "Failed to get cache statistics")
		return
	}

	respond(c, http.StatusOK, gin.H{"data": stats})
}

// clearCache handles DELETE /api/cache?key=... or ?all=true.
func (s *Server) clearCache(c *gin.Context) {
	req := invalidation.ClearRequest{
		Key: c.Query("key"),
		All: c.Query("all") == "true",
	}

	result, err := s.deps.Invalidation.Clear(c.Request.Context(), req)
	switch {
	case errors.Is(err, invalidation.ErrBadRequest):
		respondError(c, http.StatusBadRequest, "Please provide either a cache key or set all=true to clear all caches")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("Error clearing cache")
		respondError(c, http.StatusInternalServerError, "Failed to clear cache")
		return
	}

	if result.Key != "" {
		respond(c, http.StatusOK, gin.H{
			"message": fmt.Sprintf("Cache cleared for key: %s", result.Key),
			"key":     result.Key,
		})
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "All caches cleared successfully"})
}

// forceRefresh handles POST /api/cache. An empty body refreshes everything.
func (s *Server) forceRefresh(c *gin.Context) {
	limitBody(c)
	raw, err := c.GetRawData()
	if err != nil {
		if isBodyTooLarge(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var req invalidation.RefreshRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	result, err := s.deps.Invalidation.ForceRefresh(c.Request.Context(), req)
	switch {
	case errors.Is(err, invalidation.ErrBadRequest):
		respondError(c, http.StatusBadRequest, "Invalid endpoint")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("Error during force refresh")
		respondError(c, http.StatusInternalServerError, "Failed to refresh data")
		return
	}

	if result.Endpoint == "" {
		respond(c, http.StatusOK, gin.H{"message": "All data refreshed successfully"})
		return
	}

	body := gin.H{
		"message":     fmt.Sprintf("Data refreshed for endpoint: %s", result.Endpoint),
		"endpoint":    result.Endpoint,
		"revalidated": result.Revalidated,
	}
	if len(result.Prewarm.Results) > 0 {
		body["prewarm"] = result.Prewarm
	}
	respond(c, http.StatusOK, body)
}

// handleWebhook handles POST /api/webhook/cache-invalidate.
func (s *Server) handleWebhook(c *gin.Context) {
	limitBody(c)
	var ev invalidation.Event
	if err := json.NewDecoder(c.Request.Body).Decode(&ev); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("other", "bad_request").Inc()
		if isBodyTooLarge(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	resource := metrics.ResourceLabel(ev.Resource)

	result, err := s.deps.Invalidation.HandleEvent(c.Request.Context(), ev)
	switch {
	case errors.Is(err, invalidation.ErrUnauthorized):
		metrics.WebhookEventsTotal.WithLabelValues(resource, "unauthorized").Inc()
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	case errors.Is(err, invalidation.ErrBadRequest):
		metrics.WebhookEventsTotal.WithLabelValues(resource, "bad_request").Inc()
		respondError(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	case err != nil:
		metrics.WebhookEventsTotal.WithLabelValues(resource, "error").Inc()
		s.logger.Error().Err(err).Msg("Error processing webhook")
		respondError(c, http.StatusInternalServerError, "Failed to process cache invalidation webhook")
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(resource, "ok").Inc()

	if result.ClearedAll {
		respond(c, http.StatusOK, gin.H{
			"message":  "All caches cleared due to unknown resource type",
			"action":   result.Action,
			"resource": result.Resource,
			"eventId":  result.EventID,
		})
		return
	}

	body := gin.H{
		"message":       "Cache invalidation completed successfully",
		"action":        result.Action,
		"resource":      result.Resource,
		"clearedCaches": len(result.ClearedKeys),
		"eventId":       result.EventID,
	}
	if result.ResourceID != "" {
		body["resourceId"] = result.ResourceID
	}
	if len(result.Prewarm.Results) > 0 {
		body["prewarm"] = result.Prewarm
	}
	respond(c, http.StatusOK, body)
}

// webhookHealth handles GET /api/webhook/cache-invalidate.
func (s *Server) webhookHealth(c *gin.Context) {
	auth := "enabled"
	if !s.deps.Invalidation.AuthEnabled() {
		auth = "disabled"
	}

	respond(c, http.StatusOK, gin.H{
		"message":        "Cache invalidation webhook is healthy",
		"authentication": auth,
		"endpoints": gin.H{
			"invalidate": "POST /api/webhook/cache-invalidate",
			"health":     "GET /api/webhook/cache-invalidate",
		},
	})
}
