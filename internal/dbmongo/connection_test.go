package dbmongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"collabhub/internal/common"
)

func TestNewTxRunner_WithoutTransactions(t *testing.T) {
	runner := NewTxRunner(&MongoClient{}, false)
	assert.False(t, runner.Atomic())

	calls := 0
	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("step failed")
	})
	assert.EqualError(t, err, "step failed")
	assert.Equal(t, 1, calls)
}

func TestNewTxRunner_WithTransactions(t *testing.T) {
	runner := NewTxRunner(&MongoClient{}, true)
	assert.True(t, runner.Atomic())
}

func TestIndexModels_NotificationTTL(t *testing.T) {
	models := IndexModels(48 * time.Hour)

	notifIndexes := models[NotificationsCollection]
	require.NotEmpty(t, notifIndexes)

	ttl := notifIndexes[0]
	assert.Equal(t, bson.D{{Key: "createdAt", Value: 1}}, ttl.Keys)
	require.NotNil(t, ttl.Options.ExpireAfterSeconds)
	assert.Equal(t, int32(172800), *ttl.Options.ExpireAfterSeconds)
	assert.Equal(t, notificationTTLIndex, *ttl.Options.Name)

	assert.Contains(t, models, ChatsCollection)
	assert.Contains(t, models, MessagesCollection)
}

func TestChat_Membership(t *testing.T) {
	creator, member, stranger := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	chat := &Chat{
		Participants: []primitive.ObjectID{creator, member},
		Admins:       []primitive.ObjectID{creator},
	}

	assert.True(t, chat.IsParticipant(member))
	assert.False(t, chat.IsParticipant(stranger))
	assert.True(t, chat.IsAdmin(creator))
	assert.False(t, chat.IsAdmin(member))
}

func TestUser_Public(t *testing.T) {
	u := &User{
		ID:        primitive.NewObjectID(),
		UserName:  "ada",
		FirstName: "Ada",
		Email:     "ada@example.com",
		Roles:     []string{"worker"},
		Status:    common.StatusOnline,
	}

	pub := u.Public()
	assert.Equal(t, u.ID, pub.ID)
	assert.Equal(t, "ada", pub.UserName)
	assert.Equal(t, common.StatusOnline, pub.Status)
}

func TestMessage_IsReadBy(t *testing.T) {
	sender, other := primitive.NewObjectID(), primitive.NewObjectID()
	m := &Message{Sender: sender, ReadBy: []primitive.ObjectID{sender}}

	assert.True(t, m.IsReadBy(sender))
	assert.False(t, m.IsReadBy(other))
}
