package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// ListingHandler exposes the public catalogue and seller listing management.
type ListingHandler struct {
	listings *services.ListingService
}

// NewListingHandler constructs a ListingHandler.
func NewListingHandler(listings *services.ListingService) *ListingHandler {
	return &ListingHandler{listings: listings}
}

type createListingRequest struct {
	Title       string         `json:"title" validate:"required,min=3,max=140"`
	Description string         `json:"description" validate:"omitempty,max=8000"`
	PriceCents  int64          `json:"price_cents" validate:"required,gt=0"`
	Currency    string         `json:"currency" validate:"omitempty,len=3"`
	Category    string         `json:"category" validate:"omitempty,max=64"`
	Condition   string         `json:"condition" validate:"omitempty,max=64"`
	Attributes  map[string]any `json:"attributes"`
}

// Create publishes a new listing owned by the caller.
func (h *ListingHandler) Create(c *gin.Context) {
	req, ok := bindJSON[createListingRequest](c)
	if !ok {
		return
	}

	listing, err := h.listings.Create(c.Request.Context(), services.CreateListingInput{
		SellerID:    middleware.UserID(c),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Category:    req.Category,
		Condition:   req.Condition,
		Attributes:  req.Attributes,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, listing)
}

type updateListingRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=3,max=140"`
	Description *string        `json:"description" validate:"omitempty,max=8000"`
	PriceCents  *int64         `json:"price_cents" validate:"omitempty,gt=0"`
	Category    *string        `json:"category" validate:"omitempty,max=64"`
	Condition   *string        `json:"condition" validate:"omitempty,max=64"`
	Attributes  map[string]any `json:"attributes"`
}

// Update patches a listing owned by the caller.
func (h *ListingHandler) Update(c *gin.Context) {
	req, ok := bindJSON[updateListingRequest](c)
	if !ok {
		return
	}

	listing, err := h.listings.Update(c.Request.Context(), c.Param("id"), middleware.UserID(c), services.UpdateListingInput{
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		Condition:   req.Condition,
		Attributes:  req.Attributes,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, listing)
}

// Withdraw removes a listing from the catalogue.
func (h *ListingHandler) Withdraw(c *gin.Context) {
	if err := h.listings.Withdraw(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"withdrawn": true})
}

// Get returns a single listing.
func (h *ListingHandler) Get(c *gin.Context) {
	listing, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, listing)
}

// List searches the catalogue with pagination metadata.
func (h *ListingHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(c, "per_page", 20)
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	listings, total, err := h.listings.Search(c.Request.Context(), services.SearchInput{
		Query:         c.Query("q"),
		Category:      c.Query("category"),
		SellerID:      c.Query("seller_id"),
		Status:        models.ListingStatus(c.Query("status")),
		MinPriceCents: queryInt64(c, "min_price_cents"),
		MaxPriceCents: queryInt64(c, "max_price_cents"),
		Page:          page,
		PerPage:       perPage,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}
	response.SuccessWithMeta(c, http.StatusOK, listings, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}
