package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/payment"
	"github.com/tradepost/tradepost/internal/realtime"
	"github.com/tradepost/tradepost/pkg/metrics"
)

var (
	// ErrOrderNotFound indicates no order matches the id.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrNotOrderParty indicates the caller is neither buyer nor seller.
	ErrNotOrderParty = errors.New("order: not a party to the order")
	// ErrInvalidTransition indicates the order is not in a state that
	// allows the requested step.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrOwnListingPurchase indicates a seller tried to buy their own listing.
	ErrOwnListingPurchase = errors.New("order: cannot buy own listing")
	// ErrPaymentFailed wraps gateway declines.
	ErrPaymentFailed = errors.New("order: payment failed")
)

// StalePendingOrderAge is how long an unpaid order may sit before
// maintenance cancels it and releases the listing.
const StalePendingOrderAge = 24 * time.Hour

// OrderService drives the checkout and fulfilment state machine:
// pending -> paid -> shipped -> delivered, with cancellation possible
// from pending or paid.
type OrderService struct {
	db      *gorm.DB
	charger payment.Charger
	hub     *realtime.Hub
	now     func() time.Time
}

// NewOrderService constructs an OrderService. The hub may be nil.
func NewOrderService(db *gorm.DB, charger payment.Charger, hub *realtime.Hub) (*OrderService, error) {
	if db == nil {
		return nil, errors.New("order service: db is required")
	}
	if charger == nil {
		return nil, errors.New("order service: charger is required")
	}
	return &OrderService{db: db, charger: charger, hub: hub, now: time.Now}, nil
}

// CheckoutInput carries the buyer's checkout request.
type CheckoutInput struct {
	ListingID       string
	BuyerID         string
	ShippingAddress map[string]any
}

// Checkout reserves an active listing and creates a pending order with
// the price snapshotted from the listing.
func (s *OrderService) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	ctx = ensureContext(ctx)

	var address datatypes.JSON
	if input.ShippingAddress != nil {
		data, err := json.Marshal(input.ShippingAddress)
		if err != nil {
			return nil, fmt.Errorf("order service: marshal shipping address: %w", err)
		}
		address = datatypes.JSON(data)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := tx.Take(&listing, "id = ?", input.ListingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return fmt.Errorf("load listing: %w", err)
		}
		if listing.SellerID == input.BuyerID {
			return ErrOwnListingPurchase
		}
		if listing.Status != models.ListingActive {
			return ErrListingUnavailable
		}

		// Guard the reservation against a concurrent checkout: only the
		// update that still sees the listing active wins.
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", listing.ID, models.ListingActive).
			Update("status", models.ListingReserved)
		if res.Error != nil {
			return fmt.Errorf("reserve listing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrListingUnavailable
		}

		order = models.Order{
			ListingID:       listing.ID,
			BuyerID:         input.BuyerID,
			SellerID:        listing.SellerID,
			AmountCents:     listing.PriceCents,
			Currency:        listing.Currency,
			ShippingAddress: address,
			Status:          models.OrderPending,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrListingNotFound) || errors.Is(err, ErrListingUnavailable) || errors.Is(err, ErrOwnListingPurchase) {
			return nil, err
		}
		return nil, fmt.Errorf("order service: checkout: %w", err)
	}

	metrics.OrdersCreated.Inc()
	s.notify(order.SellerID, "order.created", &order)
	return &order, nil
}

// Pay charges the buyer through the payment gateway and moves the order
// from pending to paid.
func (s *OrderService) Pay(ctx context.Context, orderID, buyerID string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	order, err := s.Get(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrNotOrderParty
	}
	if order.Status != models.OrderPending {
		return nil, ErrInvalidTransition
	}

	charge, err := s.charger.CreateCharge(ctx, order.AmountCents, order.Currency,
		fmt.Sprintf("order %s", order.ID))
	if err != nil {
		if errors.Is(err, payment.ErrChargeDeclined) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, err)
		}
		return nil, fmt.Errorf("order service: charge: %w", err)
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(order).Updates(map[string]any{
		"status":     models.OrderPaid,
		"charge_ref": charge.Reference,
		"paid_at":    now,
	}).Error; err != nil {
		return nil, fmt.Errorf("order service: mark paid: %w", err)
	}

	order.Status = models.OrderPaid
	s.notify(order.SellerID, "order.paid", order)
	return s.Get(ctx, orderID, buyerID)
}

// Ship records the seller handing the item to the carrier.
func (s *OrderService) Ship(ctx context.Context, orderID, sellerID, trackingCode string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	order, err := s.Get(ctx, orderID, sellerID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, ErrNotOrderParty
	}
	if order.Status != models.OrderPaid {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(order).Updates(map[string]any{
		"status":        models.OrderShipped,
		"tracking_code": strings.TrimSpace(trackingCode),
		"shipped_at":    now,
	}).Error; err != nil {
		return nil, fmt.Errorf("order service: mark shipped: %w", err)
	}

	order.Status = models.OrderShipped
	s.notify(order.BuyerID, "order.shipped", order)
	return s.Get(ctx, orderID, sellerID)
}

// ConfirmDelivery is the buyer acknowledging receipt. The listing is
// marked sold at this point.
func (s *OrderService) ConfirmDelivery(ctx context.Context, orderID, buyerID string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	order, err := s.Get(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrNotOrderParty
	}
	if order.Status != models.OrderShipped {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(order).Updates(map[string]any{
			"status":       models.OrderDelivered,
			"delivered_at": now,
		}).Error; err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		if err := tx.Model(&models.Listing{}).
			Where("id = ?", order.ListingID).
			Update("status", models.ListingSold).Error; err != nil {
			return fmt.Errorf("mark listing sold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("order service: confirm delivery: %w", err)
	}

	order.Status = models.OrderDelivered
	s.notify(order.SellerID, "order.delivered", order)
	return s.Get(ctx, orderID, buyerID)
}

// Cancel aborts a pending or paid order and releases the listing back to
// active. Either party may cancel.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	order, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending && order.Status != models.OrderPaid {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(order).Updates(map[string]any{
			"status":       models.OrderCancelled,
			"cancelled_at": now,
		}).Error; err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}
		if err := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", order.ListingID, models.ListingReserved).
			Update("status", models.ListingActive).Error; err != nil {
			return fmt.Errorf("release listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("order service: cancel: %w", err)
	}

	counterparty := order.SellerID
	if userID == order.SellerID {
		counterparty = order.BuyerID
	}
	order.Status = models.OrderCancelled
	s.notify(counterparty, "order.cancelled", order)
	return s.Get(ctx, orderID, userID)
}

// Get loads an order and authorizes the caller as buyer or seller.
func (s *OrderService) Get(ctx context.Context, orderID, userID string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Listing").
		Take(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: get: %w", err)
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, ErrNotOrderParty
	}
	return &order, nil
}

// List returns the user's orders on either side of the trade, newest first.
func (s *OrderService) List(ctx context.Context, userID string) ([]models.Order, error) {
	ctx = ensureContext(ctx)

	var orders []models.Order
	if err := s.db.WithContext(ctx).Preload("Listing").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("order service: list: %w", err)
	}
	return orders, nil
}

// CancelStalePending cancels unpaid orders older than the cutoff and
// releases their listings. Maintenance calls this on a schedule.
func (s *OrderService) CancelStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx = ensureContext(ctx)

	if olderThan <= 0 {
		olderThan = StalePendingOrderAge
	}
	cutoff := s.now().UTC().Add(-olderThan)

	var stale []models.Order
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderPending, cutoff).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("order service: find stale: %w", err)
	}

	cancelled := 0
	now := s.now().UTC()
	for i := range stale {
		order := &stale[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(order).Updates(map[string]any{
				"status":       models.OrderCancelled,
				"cancelled_at": now,
			}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Listing{}).
				Where("id = ? AND status = ?", order.ListingID, models.ListingReserved).
				Update("status", models.ListingActive).Error
		})
		if err != nil {
			return cancelled, fmt.Errorf("order service: cancel stale %s: %w", order.ID, err)
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *OrderService) notify(userID, eventType string, order *models.Order) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(userID, realtime.Event{
		Type: eventType,
		Data: map[string]any{
			"order_id":   order.ID,
			"listing_id": order.ListingID,
			"status":     order.Status,
		},
	})
}
