package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
)

type conversationEnv struct {
	svc    *ConversationService
	db     *gorm.DB
	buyer  *models.User
	seller *models.User
	item   *models.Listing
}

func newConversationEnv(t *testing.T) *conversationEnv {
	t.Helper()

	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	buyer := createTestUser(t, db, "buyer@example.com", "buyer", models.RoleBuyer)
	listing := createTestListing(t, db, seller.ID, 5000)

	svc, err := NewConversationService(db, nil)
	require.NoError(t, err)

	return &conversationEnv{svc: svc, db: db, buyer: buyer, seller: seller, item: listing}
}

func TestStartConversation(t *testing.T) {
	env := newConversationEnv(t)
	ctx := context.Background()

	conversation, message, err := env.svc.Start(ctx, env.item.ID, env.buyer.ID, "Is this still available?")
	require.NoError(t, err)
	require.Equal(t, env.seller.ID, conversation.SellerID)
	require.Equal(t, "Is this still available?", message.Body)
	require.Equal(t, "Is this still available?", conversation.LastMessagePreview)
	require.Equal(t, 1, conversation.SellerUnread)
	require.NotNil(t, conversation.LastMessageAt)

	// Starting again reuses the same thread.
	again, _, err := env.svc.Start(ctx, env.item.ID, env.buyer.ID, "Ping?")
	require.NoError(t, err)
	require.Equal(t, conversation.ID, again.ID)
	require.Equal(t, 2, again.SellerUnread)
}

func TestStartConversationOwnListing(t *testing.T) {
	env := newConversationEnv(t)

	_, _, err := env.svc.Start(context.Background(), env.item.ID, env.seller.ID, "hi me")
	require.ErrorIs(t, err, ErrOwnListing)
}

func TestSendMessageAuthorization(t *testing.T) {
	env := newConversationEnv(t)
	ctx := context.Background()

	conversation, _, err := env.svc.Start(ctx, env.item.ID, env.buyer.ID, "hello")
	require.NoError(t, err)

	stranger := createTestUser(t, env.db, "stranger@example.com", "stranger", models.RoleBuyer)
	_, err = env.svc.SendMessage(ctx, conversation.ID, stranger.ID, "let me in")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.svc.SendMessage(ctx, conversation.ID, env.buyer.ID, "   ")
	require.ErrorIs(t, err, ErrMessageEmpty)
}

func TestUnreadCountersAndMarkRead(t *testing.T) {
	env := newConversationEnv(t)
	ctx := context.Background()

	conversation, _, err := env.svc.Start(ctx, env.item.ID, env.buyer.ID, "first")
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, conversation.ID, env.buyer.ID, "second")
	require.NoError(t, err)

	total, err := env.svc.UnreadCount(ctx, env.seller.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	// Reading as the seller clears their counter and stamps the messages.
	messages, err := env.svc.Messages(ctx, conversation.ID, env.seller.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "first", messages[0].Body)

	total, err = env.svc.UnreadCount(ctx, env.seller.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, total)

	var unreadLeft int64
	require.NoError(t, env.db.Model(&models.Message{}).
		Where("conversation_id = ? AND read_at IS NULL AND sender_id <> ?", conversation.ID, env.seller.ID).
		Count(&unreadLeft).Error)
	require.EqualValues(t, 0, unreadLeft)

	// A reply flips the direction of the unread counter.
	_, err = env.svc.SendMessage(ctx, conversation.ID, env.seller.ID, "yes, still here")
	require.NoError(t, err)

	total, err = env.svc.UnreadCount(ctx, env.buyer.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestConversationListOrdering(t *testing.T) {
	env := newConversationEnv(t)
	ctx := context.Background()

	second := createTestListing(t, env.db, env.seller.ID, 9000)

	first, _, err := env.svc.Start(ctx, env.item.ID, env.buyer.ID, "about the bike")
	require.NoError(t, err)
	_, _, err = env.svc.Start(ctx, second.ID, env.buyer.ID, "about the other thing")
	require.NoError(t, err)

	// Touch the first thread again so it becomes the most recent.
	_, err = env.svc.SendMessage(ctx, first.ID, env.buyer.ID, "still interested")
	require.NoError(t, err)

	threads, err := env.svc.List(ctx, env.seller.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, first.ID, threads[0].ID)
}

func TestMessagePreviewTruncation(t *testing.T) {
	env := newConversationEnv(t)

	long := strings.Repeat("a", 300)
	conversation, _, err := env.svc.Start(context.Background(), env.item.ID, env.buyer.ID, long)
	require.NoError(t, err)
	require.Less(t, len(conversation.LastMessagePreview), len(long))
	require.True(t, strings.HasSuffix(conversation.LastMessagePreview, "…"))
}
