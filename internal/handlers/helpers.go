package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/internal/verify"
	appErrors "github.com/tradepost/tradepost/pkg/errors"
	"github.com/tradepost/tradepost/pkg/response"
	"github.com/tradepost/tradepost/pkg/validator"
)

// bindJSON decodes and validates a request body. On failure it writes the
// error response and reports false.
func bindJSON[T any](c *gin.Context) (T, bool) {
	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid request body"))
		return payload, false
	}
	if err := validator.ValidateStruct(payload); err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return payload, false
	}
	return payload, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryInt64(c *gin.Context, name string) int64 {
	value, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// mapServiceError translates service and store sentinels into API errors.
// Unknown errors surface as opaque 500s; internals stay in the logs.
func mapServiceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, verify.ErrCodeNotFound):
		return appErrors.ErrCodeNotFound
	case errors.Is(err, verify.ErrCodeExpired):
		return appErrors.ErrCodeExpired
	case errors.Is(err, verify.ErrCodeMismatch):
		return appErrors.ErrCodeMismatch

	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, services.ErrNotVerified):
		return appErrors.ErrAccountNotVerified
	case errors.Is(err, services.ErrEmailTaken):
		return appErrors.NewConflict("Email address is already registered")
	case errors.Is(err, services.ErrUsernameTaken):
		return appErrors.NewConflict("Username is already in use")
	case errors.Is(err, services.ErrUsernameChangeUsed):
		return appErrors.NewConflict("Username can only be changed once")
	case errors.Is(err, services.ErrUserNotFound):
		return appErrors.ErrNotFound

	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrSessionExpired):
		return appErrors.ErrUnauthorized

	case errors.Is(err, services.ErrListingNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		return appErrors.ErrNotFound

	case errors.Is(err, services.ErrNotListingOwner),
		errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrNotOrderParty):
		return appErrors.ErrForbidden

	case errors.Is(err, services.ErrListingUnavailable):
		return appErrors.NewConflict("Listing is not available")
	case errors.Is(err, services.ErrInvalidTransition):
		return appErrors.NewConflict("Order is not in a state that allows this step")
	case errors.Is(err, services.ErrOwnListing), errors.Is(err, services.ErrOwnListingPurchase):
		return appErrors.NewBadRequest("You cannot do this with your own listing")
	case errors.Is(err, services.ErrMessageEmpty):
		return appErrors.NewBadRequest("Message body cannot be empty")
	case errors.Is(err, services.ErrPaymentFailed):
		return appErrors.New("PAYMENT_FAILED", "Payment was declined", 402)

	case errors.Is(err, services.ErrAlreadyReviewed):
		return appErrors.NewConflict("You already reviewed this order")
	case errors.Is(err, services.ErrReviewNotAllowed):
		return appErrors.NewBadRequest("Only parties to a delivered order can review it")
	case errors.Is(err, services.ErrInvalidRating):
		return appErrors.NewBadRequest("Rating must be between 1 and 5")

	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
