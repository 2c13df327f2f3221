// Package invalidation implements the operator and webhook operations that
// reset the cache ledger: stats, clear, force-refresh and resource events.
//
// The Service is transport-agnostic. internal/server binds it to HTTP.
package invalidation

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/Sternrassler/bookshelf-web/pkg/prewarm"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrBadRequest marks a request the caller must fix.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized marks a webhook call with a wrong shared secret.
	ErrUnauthorized = errors.New("unauthorized")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Warmer re-fetches URLs after invalidation. *prewarm.Warmer implements it.
type Warmer interface {
	Warm(ctx context.Context, urls ...string) prewarm.Report
}

// Config holds service configuration.
type Config struct {
	// Origin is the backend API base URL keys are built from.
	Origin string

	// Secret is the webhook shared secret. Empty disables authentication.
	Secret string
}

// Service drives the ledger on behalf of operators and webhooks.
type Service struct {
	ledger *ledger.Ledger
	warmer Warmer
	origin string
	secret []byte
	logger zerolog.Logger
}

// New creates a service. warmer may be nil, in which case nothing is pre-warmed.
func New(l *ledger.Ledger, warmer Warmer, cfg Config) *Service {
	if l == nil {
		panic("invalidation: ledger cannot be nil")
	}

	s := &Service{
		ledger: l,
		warmer: warmer,
		origin: cache.NormalizeOrigin(cfg.Origin),
		logger: logging.NewLogger("invalidation"),
	}
	if cfg.Secret != "" {
		s.secret = []byte(cfg.Secret)
	}
	return s
}

// AuthEnabled reports whether webhook events must carry the shared secret.
func (s *Service) AuthEnabled() bool {
	return len(s.secret) > 0
}

// Stats returns the current ledger snapshot.
func (s *Service) Stats(ctx context.Context) (ledger.Stats, error) {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return ledger.Stats{}, fmt.Errorf("get stats: %w", err)
	}

	s.logger.Debug().
		Str("operation", "stats").
		Int("total_cache_keys", stats.TotalCacheKeys).
		Msg("Cache statistics retrieved")

	return stats, nil
}

// ClearRequest selects what Clear removes. Key wins over All.
type ClearRequest struct {
	Key string
	All bool
}

// ClearResult describes what Clear removed.
type ClearResult struct {
	// Key is set when a single key was cleared.
	Key string
	All bool
}

// Clear removes a single key or the whole ledger.
func (s *Service) Clear(ctx context.Context, req ClearRequest) (ClearResult, error) {
	switch {
	case req.Key != "":
		s.logger.Info().Str("operation", "clear").Str("key", req.Key).Msg("Clearing cache for key")
		if err := s.ledger.Invalidate(ctx, req.Key); err != nil {
			return ClearResult{}, fmt.Errorf("clear %s: %w", req.Key, err)
		}
		return ClearResult{Key: req.Key}, nil

	case req.All:
		s.logger.Info().Str("operation", "clear_all").Msg("Clearing all caches")
		if err := s.ledger.InvalidateAll(ctx); err != nil {
			return ClearResult{}, fmt.Errorf("clear all: %w", err)
		}
		return ClearResult{All: true}, nil

	default:
		return ClearResult{}, fmt.Errorf("%w: provide a cache key or all=true", ErrBadRequest)
	}
}

// RefreshRequest is the force-refresh body.
type RefreshRequest struct {
	// Endpoint is an origin path such as "/books/42". Empty refreshes everything.
	Endpoint string `json:"endpoint" validate:"omitempty,startswith=/,max=512"`

	// Revalidate pre-warms the endpoint after clearing it. Defaults to true.
	Revalidate *bool `json:"revalidate"`
}

// RefreshResult is the primary outcome of a force-refresh plus its pre-warm
// side effect.
type RefreshResult struct {
	// Endpoint is empty when the whole ledger was cleared.
	Endpoint    string
	Revalidated bool
	Prewarm     prewarm.Report
}

// ForceRefresh clears one endpoint and optionally re-fetches it, or clears
// the whole ledger when no endpoint is given. Pre-warm failures are reported
// in the result, never as an error.
func (s *Service) ForceRefresh(ctx context.Context, req RefreshRequest) (RefreshResult, error) {
	if err := validate.Struct(req); err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if req.Endpoint == "" {
		s.logger.Info().Str("operation", "force_refresh_all").Msg("Force refreshing all data")
		if err := s.ledger.InvalidateAll(ctx); err != nil {
			return RefreshResult{}, fmt.Errorf("refresh all: %w", err)
		}
		return RefreshResult{}, nil
	}

	revalidate := req.Revalidate == nil || *req.Revalidate
	key := cache.KeyFor(s.origin, req.Endpoint)

	s.logger.Info().
		Str("operation", "force_refresh").
		Str("endpoint", req.Endpoint).
		Bool("revalidate", revalidate).
		Msg("Force refreshing endpoint")

	if err := s.ledger.Invalidate(ctx, key); err != nil {
		return RefreshResult{}, fmt.Errorf("refresh %s: %w", req.Endpoint, err)
	}

	result := RefreshResult{Endpoint: req.Endpoint, Revalidated: revalidate}
	if revalidate && s.warmer != nil {
		result.Prewarm = s.warmer.Warm(ctx, key)
	}
	return result, nil
}

// Event is a resource change notification from the backend.
type Event struct {
	Action     string `json:"action" validate:"max=64"`
	Resource   string `json:"resource" validate:"max=64"`
	ResourceID string `json:"resourceId" validate:"omitempty,max=256,excludesall=/?#"`
	Timestamp  any    `json:"timestamp"`
	APIKey     string `json:"apiKey"`
}

// UnmarshalJSON accepts resourceId as a JSON string or number. Numbers keep
// their literal text, so 42 becomes "42".
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		ResourceID json.RawMessage `json:"resourceId"`
	}{plain: (*plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := resourceIDText(aux.ResourceID)
	if err != nil {
		return err
	}
	e.ResourceID = id
	return nil
}

func resourceIDText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("resourceId must be a string or number: %w", err)
	}
	return n.String(), nil
}

// EventResult is the outcome of HandleEvent.
type EventResult struct {
	EventID    string
	Action     string
	Resource   string
	ResourceID string

	// ClearedKeys lists the invalidated keys. Empty when ClearedAll.
	ClearedKeys []string
	ClearedAll  bool

	Prewarm prewarm.Report
}

// HandleEvent maps a resource event to the ledger keys it affects and clears
// them. Create and update events pre-warm the book list, and the book itself
// for book events with an id.
//
// Unknown resources clear the whole ledger.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (EventResult, error) {
	eventID := ulid.Make().String()
	logger := s.logger.With().Str("event_id", eventID).Logger()

	logger.Info().
		Str("operation", "webhook_received").
		Str("action", ev.Action).
		Str("resource", ev.Resource).
		Str("resource_id", ev.ResourceID).
		Interface("timestamp", ev.Timestamp).
		Bool("has_api_key", ev.APIKey != "").
		Msg("Received cache invalidation event")

	if s.AuthEnabled() && subtle.ConstantTimeCompare([]byte(ev.APIKey), s.secret) != 1 {
		logger.Warn().Str("operation", "webhook_unauthorized").Msg("Invalid API key provided")
		return EventResult{}, ErrUnauthorized
	}

	if err := validate.Struct(ev); err != nil {
		return EventResult{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	result := EventResult{
		EventID:    eventID,
		Action:     ev.Action,
		Resource:   ev.Resource,
		ResourceID: ev.ResourceID,
	}

	listKey := cache.KeyFor(s.origin, cache.BookListEndpoint)
	var bookKey string

	switch ev.Resource {
	case "book", "books":
		if ev.ResourceID != "" {
			bookKey = cache.KeyFor(s.origin, cache.BookEndpoint(ev.ResourceID))
			result.ClearedKeys = append(result.ClearedKeys, bookKey)
		}
		result.ClearedKeys = append(result.ClearedKeys, listKey)

	case "author", "authors":
		result.ClearedKeys = append(result.ClearedKeys, listKey)
		if ev.ResourceID != "" {
			result.ClearedKeys = append(result.ClearedKeys, cache.KeyFor(s.origin, cache.AuthorEndpoint(ev.ResourceID)))
		}

	default:
		logger.Info().Str("operation", "webhook_clear_all").Msg("Unknown resource, clearing all caches")
		if err := s.ledger.InvalidateAll(ctx); err != nil {
			return EventResult{}, fmt.Errorf("clear all: %w", err)
		}
		result.ClearedAll = true
		return result, nil
	}

	for _, key := range result.ClearedKeys {
		if err := s.ledger.Invalidate(ctx, key); err != nil {
			return EventResult{}, fmt.Errorf("clear %s: %w", key, err)
		}
	}

	logger.Info().
		Str("operation", "webhook_invalidated").
		Int("cleared_caches", len(result.ClearedKeys)).
		Strs("cache_keys", result.ClearedKeys).
		Msg("Cache invalidation completed")

	if (ev.Action == "update" || ev.Action == "create") && s.warmer != nil {
		urls := []string{listKey}
		if bookKey != "" {
			urls = append(urls, bookKey)
		}

		start := time.Now()
		result.Prewarm = s.warmer.Warm(ctx, urls...)
		logger.Info().
			Str("operation", "webhook_prewarm").
			Bool("ok", result.Prewarm.OK()).
			Dur("duration", time.Since(start)).
			Msg("Fresh data pre-fetched")
	}

	return result, nil
}
