package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/internal/heat/usecase/command"
	"github.com/tair/heat-service/internal/heat/usecase/query"
	"github.com/tair/heat-service/pkg/auth"
	"github.com/tair/heat-service/pkg/logger"
)

// HeatHandler handles HTTP requests for favorites and trending using CQRS pattern
type HeatHandler struct {
	// Command handlers
	toggleHandler *command.ToggleFavoriteHandler

	// Query handlers
	trendingHandler    *query.ResolveTrendingHandler
	isFavoritedHandler *query.IsFavoritedHandler
	listHandler        *query.ListFavoritesHandler
	getItemHandler     *query.GetItemHandler

	validator *auth.Validator
	limiter   *RateLimiter
	store     domain.Store
}

// NewHeatHandler creates a new heat handler. limiter may be nil.
func NewHeatHandler(
	toggleHandler *command.ToggleFavoriteHandler,
	trendingHandler *query.ResolveTrendingHandler,
	isFavoritedHandler *query.IsFavoritedHandler,
	listHandler *query.ListFavoritesHandler,
	getItemHandler *query.GetItemHandler,
	validator *auth.Validator,
	limiter *RateLimiter,
	store domain.Store,
) *HeatHandler {
	return &HeatHandler{
		toggleHandler:      toggleHandler,
		trendingHandler:    trendingHandler,
		isFavoritedHandler: isFavoritedHandler,
		listHandler:        listHandler,
		getItemHandler:     getItemHandler,
		validator:          validator,
		limiter:            limiter,
		store:              store,
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ItemResponse is an item with the caller's favorite state
type ItemResponse struct {
	domain.Item
	Favorited bool `json:"favorited"`
}

func (h *HeatHandler) RegisterRoutes(router *mux.Router) {
	authRequired := AuthMiddleware(h.validator)
	authOptional := OptionalAuthMiddleware(h.validator)

	// Public routes
	router.HandleFunc("/api/items/trending", metricsMiddleware("/api/items/trending", h.GetTrending)).Methods("GET")
	router.HandleFunc("/api/items/{id}", metricsMiddleware("/api/items/{id}", authOptional(h.GetItem))).Methods("GET")
	router.HandleFunc("/api/items/{id}/favorite", metricsMiddleware("/api/items/{id}/favorite", authOptional(h.GetFavoriteState))).Methods("GET")

	// Authenticated routes
	router.HandleFunc("/api/items/{id}/favorite", metricsMiddleware("/api/items/{id}/favorite", authRequired(h.limiter.Middleware(h.ToggleFavorite)))).Methods("POST")
	router.HandleFunc("/api/me/favorites", metricsMiddleware("/api/me/favorites", authRequired(h.ListFavorites))).Methods("GET")
}

// GetTrending handles GET /api/items/trending
func (h *HeatHandler) GetTrending(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	result, err := h.trendingHandler.Handle(r.Context(), query.ResolveTrendingQuery{PageSize: limit})
	if err != nil {
		respondDomainError(w, r, err, "Failed to resolve trending items")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// GetItem handles GET /api/items/{id}
func (h *HeatHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	item, err := h.getItemHandler.Handle(r.Context(), query.GetItemQuery{ID: itemID})
	if err != nil {
		respondDomainError(w, r, err, "Failed to get item")
		return
	}

	favorited, err := h.isFavoritedHandler.Handle(r.Context(), query.IsFavoritedQuery{
		UserID: UserIDFromContext(r.Context()),
		ItemID: itemID,
	})
	if err != nil {
		// The item is still worth showing without the caller's mark
		logger.Warn(r.Context()).Err(err).Str("item_id", itemID).Msg("Failed to read favorite state")
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    ItemResponse{Item: *item, Favorited: favorited},
	})
}

// GetFavoriteState handles GET /api/items/{id}/favorite
func (h *HeatHandler) GetFavoriteState(w http.ResponseWriter, r *http.Request) {
	favorited, err := h.isFavoritedHandler.Handle(r.Context(), query.IsFavoritedQuery{
		UserID: UserIDFromContext(r.Context()),
		ItemID: mux.Vars(r)["id"],
	})
	if err != nil {
		respondDomainError(w, r, err, "Failed to read favorite state")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]bool{"favorited": favorited},
	})
}

// ToggleFavorite handles POST /api/items/{id}/favorite
func (h *HeatHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	result, err := h.toggleHandler.Handle(r.Context(), command.ToggleFavoriteCommand{
		UserID: UserIDFromContext(r.Context()),
		ItemID: mux.Vars(r)["id"],
	})
	if err != nil {
		respondDomainError(w, r, err, "Failed to toggle favorite")
		return
	}

	message := "Removed from favorites"
	if result.Favorited {
		message = "Added to favorites"
	}
	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    result,
	})
}

// ListFavorites handles GET /api/me/favorites
func (h *HeatHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	favorites, err := h.listHandler.Handle(r.Context(), query.ListFavoritesQuery{
		UserID: UserIDFromContext(r.Context()),
		Limit:  limit,
	})
	if err != nil {
		respondDomainError(w, r, err, "Failed to list favorites")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"favorites": favorites,
			"count":     len(favorites),
		},
	})
}

// parseLimit reads the optional limit query parameter; 0 means the default
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *HeatHandler) RegisterHealthCheck(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("Health check failed")
			respondError(w, http.StatusServiceUnavailable, "Store unavailable")
			return
		}

		respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "Heat service is healthy",
		})
	}).Methods("GET")
}

// statusFor maps a domain error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrContention):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondDomainError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	event := logger.Warn(r.Context())
	if status >= http.StatusInternalServerError {
		event = logger.Error(r.Context())
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg(message)

	// Unsupported queries carry the diagnosis an operator needs to add the index
	var unsupported *domain.QueryUnsupportedError
	if errors.As(err, &unsupported) {
		respondError(w, status, unsupported.Error())
		return
	}
	if status == http.StatusInternalServerError {
		respondError(w, status, message)
		return
	}
	respondError(w, status, err.Error())
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// Helper function for error responses
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}
