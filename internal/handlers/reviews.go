package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// ReviewHandler exposes post-trade feedback.
type ReviewHandler struct {
	reviews *services.ReviewService
}

// NewReviewHandler constructs a ReviewHandler.
func NewReviewHandler(reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

type submitReviewRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"omitempty,max=2000"`
}

// Submit records the caller's review of the counterparty on a delivered order.
func (h *ReviewHandler) Submit(c *gin.Context) {
	req, ok := bindJSON[submitReviewRequest](c)
	if !ok {
		return
	}

	review, err := h.reviews.Submit(c.Request.Context(), services.SubmitReviewInput{
		OrderID:  req.OrderID,
		AuthorID: middleware.UserID(c),
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, review)
}

// ForUser lists the reviews a user has received.
func (h *ReviewHandler) ForUser(c *gin.Context) {
	reviews, err := h.reviews.ForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, reviews)
}
