package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterSwaggerDocs registers Swagger documentation routes
// @Summary Swagger documentation
// @Description Swagger API documentation
// @Tags Swagger
// @Success 200 {string} string "Swagger UI"
// @Router /swagger/ [get]
func RegisterSwaggerDocs(router *mux.Router, swaggerHandler http.Handler) {
	router.PathPrefix("/swagger/").Handler(swaggerHandler)
}

// GetTrending godoc
// @Summary Trending items
// @Description Items flagged trending ordered by popularity; falls back to all items by popularity when none are flagged
// @Tags Items
// @Produce json
// @Param limit query int false "Page size (default 12, max 100)"
// @Success 200 {object} object{success=bool,data=object{items=array,tier=string,count=int}}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 500 {object} object{success=bool,error=string}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /api/items/trending [get]
func (h *HeatHandler) GetTrendingDoc() {}

// GetItem godoc
// @Summary Get item by ID
// @Description Get an item; favorited reflects the caller when a token is supplied
// @Tags Items
// @Security BearerAuth
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} object{success=bool,error=string}
// @Router /api/items/{id} [get]
func (h *HeatHandler) GetItemDoc() {}

// GetFavoriteState godoc
// @Summary Favorite state
// @Description Whether the caller favorites the item; anonymous callers always get false
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} object{success=bool,data=object{favorited=bool}}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /api/items/{id}/favorite [get]
func (h *HeatHandler) GetFavoriteStateDoc() {}

// ToggleFavorite godoc
// @Summary Toggle favorite
// @Description Add or remove the caller's favorite mark and adjust the item's heat count atomically
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} object{success=bool,message=string,data=object{favorited=bool,heat_count=int}}
// @Failure 401 {object} object{success=bool,error=string}
// @Failure 409 {object} object{success=bool,error=string}
// @Failure 429 {object} object{success=bool,error=string}
// @Failure 504 {object} object{success=bool,error=string}
// @Router /api/items/{id}/favorite [post]
func (h *HeatHandler) ToggleFavoriteDoc() {}

// ListFavorites godoc
// @Summary List my favorites
// @Description The caller's favorite marks, newest first
// @Tags Favorites
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Limit (default 50, max 100)"
// @Success 200 {object} object{success=bool,data=object{favorites=array,count=int}}
// @Failure 401 {object} object{success=bool,error=string}
// @Router /api/me/favorites [get]
func (h *HeatHandler) ListFavoritesDoc() {}

// HealthCheck godoc
// @Summary Health check
// @Description Check service health and store connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} object{success=bool,message=string}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /health [get]
func (h *HeatHandler) HealthCheckDoc() {}
