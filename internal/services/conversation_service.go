package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/realtime"
	"github.com/tradepost/tradepost/pkg/metrics"
)

const messagePreviewLength = 120

var (
	// ErrConversationNotFound indicates no conversation matches the id.
	ErrConversationNotFound = errors.New("conversation: not found")
	// ErrNotParticipant indicates the caller is not part of the conversation.
	ErrNotParticipant = errors.New("conversation: not a participant")
	// ErrMessageEmpty indicates a blank message body.
	ErrMessageEmpty = errors.New("conversation: message body is empty")
	// ErrOwnListing indicates a seller tried to message their own listing.
	ErrOwnListing = errors.New("conversation: cannot contact own listing")
)

// ConversationService manages buyer-seller message threads. Each
// (listing, buyer) pair has at most one conversation; starting a second
// one lands in the existing thread.
type ConversationService struct {
	db  *gorm.DB
	hub *realtime.Hub
	now func() time.Time
}

// NewConversationService constructs a ConversationService. The hub may be
// nil, in which case no realtime events are pushed.
func NewConversationService(db *gorm.DB, hub *realtime.Hub) (*ConversationService, error) {
	if db == nil {
		return nil, errors.New("conversation service: db is required")
	}
	return &ConversationService{db: db, hub: hub, now: time.Now}, nil
}

// Start opens (or reuses) the conversation between the buyer and the
// listing's seller, then posts the first message.
func (s *ConversationService) Start(ctx context.Context, listingID, buyerID, body string) (*models.Conversation, *models.Message, error) {
	ctx = ensureContext(ctx)

	var listing models.Listing
	if err := s.db.WithContext(ctx).Take(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrListingNotFound
		}
		return nil, nil, fmt.Errorf("conversation service: load listing: %w", err)
	}
	if listing.SellerID == buyerID {
		return nil, nil, ErrOwnListing
	}

	conversation, err := s.findOrCreate(ctx, &listing, buyerID)
	if err != nil {
		return nil, nil, err
	}

	message, err := s.SendMessage(ctx, conversation.ID, buyerID, body)
	if err != nil {
		return nil, nil, err
	}

	conversation, err = s.Get(ctx, conversation.ID, buyerID)
	if err != nil {
		return nil, nil, err
	}
	return conversation, message, nil
}

// SendMessage appends a message to a conversation the sender takes part
// in, refreshes the thread's preview cache and the recipient's unread
// counter, and pushes a realtime event to the recipient.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID, senderID, body string) (*models.Message, error) {
	ctx = ensureContext(ctx)

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrMessageEmpty
	}

	conversation, err := s.Get(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	message := models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Body:           body,
	}

	now := s.now().UTC()
	unreadColumn := "seller_unread"
	recipientID := conversation.SellerID
	if senderID == conversation.SellerID {
		unreadColumn = "buyer_unread"
		recipientID = conversation.BuyerID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		updates := map[string]any{
			"last_message_preview": preview(body),
			"last_message_at":      now,
			unreadColumn:           gorm.Expr(unreadColumn+" + ?", 1),
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversation.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("update conversation cache: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation service: send: %w", err)
	}

	metrics.MessagesSent.Inc()
	if s.hub != nil {
		s.hub.Publish(recipientID, realtime.Event{
			Type: "message.new",
			Data: map[string]any{
				"conversation_id": conversation.ID,
				"message_id":      message.ID,
				"sender_id":       senderID,
				"preview":         preview(body),
			},
		})
	}

	return &message, nil
}

// Get loads a conversation and authorizes the caller as a participant.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)

	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Preload("Listing").
		Take(&conversation, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation service: get: %w", err)
	}
	if !conversation.Participant(userID) {
		return nil, ErrNotParticipant
	}
	return &conversation, nil
}

// List returns the user's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx = ensureContext(ctx)

	var conversations []models.Conversation
	if err := s.db.WithContext(ctx).Preload("Listing").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("conversation service: list: %w", err)
	}
	return conversations, nil
}

// Messages returns a page of a conversation's messages, oldest first, and
// marks the thread read for the caller.
func (s *ConversationService) Messages(ctx context.Context, conversationID, userID string, limit int) ([]models.Message, error) {
	ctx = ensureContext(ctx)

	conversation, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var messages []models.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("conversation service: messages: %w", err)
	}

	if err := s.MarkRead(ctx, conversation.ID, userID); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead zeroes the caller's unread counter and stamps their unread
// messages in the thread.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID string) error {
	ctx = ensureContext(ctx)

	conversation, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	unreadColumn := "buyer_unread"
	if userID == conversation.SellerID {
		unreadColumn = "seller_unread"
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversation.ID).
			Update(unreadColumn, 0).Error; err != nil {
			return fmt.Errorf("reset unread counter: %w", err)
		}
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversation.ID, userID).
			Update("read_at", now).Error; err != nil {
			return fmt.Errorf("stamp messages read: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation service: mark read: %w", err)
	}
	return nil
}

// UnreadCount sums the caller's unread counters across all threads.
func (s *ConversationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var buyerSide, sellerSide int64
	row := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Select("COALESCE(SUM(buyer_unread), 0)").
		Where("buyer_id = ?", userID).
		Row()
	if err := row.Scan(&buyerSide); err != nil {
		return 0, fmt.Errorf("conversation service: unread count: %w", err)
	}
	row = s.db.WithContext(ctx).Model(&models.Conversation{}).
		Select("COALESCE(SUM(seller_unread), 0)").
		Where("seller_id = ?", userID).
		Row()
	if err := row.Scan(&sellerSide); err != nil {
		return 0, fmt.Errorf("conversation service: unread count: %w", err)
	}
	return buyerSide + sellerSide, nil
}

func (s *ConversationService) findOrCreate(ctx context.Context, listing *models.Listing, buyerID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Take(&conversation, "listing_id = ? AND buyer_id = ?", listing.ID, buyerID).Error
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation service: lookup: %w", err)
	}

	conversation = models.Conversation{
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
	}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		// A concurrent Start for the same pair may have won the race.
		if isUniqueConstraintError(err) {
			if lookupErr := s.db.WithContext(ctx).
				Take(&conversation, "listing_id = ? AND buyer_id = ?", listing.ID, buyerID).Error; lookupErr == nil {
				return &conversation, nil
			}
		}
		return nil, fmt.Errorf("conversation service: create: %w", err)
	}
	return &conversation, nil
}

func preview(body string) string {
	if len(body) <= messagePreviewLength {
		return body
	}
	cut := body[:messagePreviewLength]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
