package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"collabhub/internal/chat/repository"
	"collabhub/internal/chat/service/mocks"
	"collabhub/internal/common"
	"collabhub/internal/dbmongo"
	"collabhub/internal/notif"
	"collabhub/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"
)

type presenceMap map[primitive.ObjectID]common.UserStatus

func (p presenceMap) StatusOf(_ context.Context, id primitive.ObjectID) common.UserStatus {
	if s, ok := p[id]; ok {
		return s
	}
	return common.StatusUnknown
}

type recordingBus struct {
	mu       sync.Mutex
	topics   []string
	payloads []interface{}
}

func (b *recordingBus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
}

// atomicTx stands in for a transactional runner.
type atomicTx struct{}

func (atomicTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (atomicTx) Atomic() bool { return true }

type messageDeps struct {
	chats    *mocks.MockChatRepository
	messages *mocks.MockMessageRepository
	media    *mocks.MockMediaRepository
	users    *mocks.MockUserDirectory
	notifier *mocks.MockNotifier
	presence presenceMap
	bus      *recordingBus
}

func newMessageService(t *testing.T, tx dbmongo.TxRunner) (*messageService, *messageDeps) {
	ctrl := gomock.NewController(t)
	d := &messageDeps{
		chats:    mocks.NewMockChatRepository(ctrl),
		messages: mocks.NewMockMessageRepository(ctrl),
		media:    mocks.NewMockMediaRepository(ctrl),
		users:    mocks.NewMockUserDirectory(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		presence: presenceMap{},
		bus:      &recordingBus{},
	}
	svc := NewMessageService(d.chats, d.messages, d.media, d.users, d.presence, d.notifier, d.bus, tx).(*messageService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc, d
}

func directChat(a, b primitive.ObjectID) *dbmongo.Chat {
	return &dbmongo.Chat{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{a, b},
		Admins:       []primitive.ObjectID{a},
		CreatedBy:    a,
	}
}

func TestMessageService_AddMessage(t *testing.T) {
	sender := &dbmongo.User{ID: primitive.NewObjectID(), UserName: "sam"}
	recipient := primitive.NewObjectID()

	t.Run("offline recipient is notified", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)
		d.presence[recipient] = common.StatusOffline

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmongo.Message) error {
			assert.Equal(t, []primitive.ObjectID{sender.ID}, m.ReadBy)
			assert.Nil(t, m.Media)
			m.ID = primitive.NewObjectID()
			return nil
		})
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, gomock.Any(), gomock.Any()).Return(nil)
		d.notifier.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in notif.CreateInput) (*dbmongo.Notification, error) {
				assert.Equal(t, []primitive.ObjectID{recipient}, in.RecipientIDs)
				assert.Equal(t, common.NotificationDirectMessage, in.Type)
				assert.Equal(t, common.ContentUser, in.ContentType)
				assert.Equal(t, sender.ID, in.ContentID)
				assert.Equal(t, "New message from sam", in.Message)
				assert.True(t, in.PresenceFiltered)
				return &dbmongo.Notification{}, nil
			})

		msg, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: " hi ",
		})
		require.NoError(t, err)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "sam", msg.Sender.UserName)

		require.Len(t, d.bus.topics, 1)
		assert.Equal(t, common.TopicChatMessage, d.bus.topics[0])
		assert.Equal(t, msg.ID, d.bus.payloads[0].(EnrichedMessage).ID)
	})

	t.Run("online recipient is not notified", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)
		d.presence[recipient] = common.StatusOnline

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, gomock.Any(), gomock.Any()).Return(nil)
		d.notifier.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		require.NoError(t, err)
		assert.Len(t, d.bus.topics, 1)
	})

	t.Run("notification failure does not fail the message", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, gomock.Any(), gomock.Any()).Return(nil)
		d.notifier.EXPECT().CreateNotification(gomock.Any(), gomock.Any()).Return(nil, errors.New("queue full"))

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		assert.NoError(t, err)
	})

	t.Run("sender outside the chat", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(primitive.NewObjectID(), recipient)

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		assertCode(t, err, common.CodeForbidden)
		assert.Empty(t, d.bus.topics)
	})

	t.Run("frozen chat", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)
		chat.IsDeleted = true

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		assertCode(t, err, common.CodeForbidden)
	})

	t.Run("missing chat", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chatID := primitive.NewObjectID()

		d.chats.EXPECT().FindByID(gomock.Any(), chatID).Return(nil, repository.ErrNotFound)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil).AnyTimes()

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chatID, Type: common.MessageText, Content: "hi",
		})
		assertCode(t, err, common.CodeNotFound)
	})

	t.Run("missing sender", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil).AnyTimes()
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(nil, user.ErrUserNotFound)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		assertCode(t, err, common.CodeNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc, _ := newMessageService(t, dbmongo.SequentialTx{})
		inputs := []AddMessageInput{
			{Type: "STICKER", Content: "x"},
			{Type: common.MessageText, Content: "  "},
			{Type: common.MessageMedia},
			{Type: common.MessageMedia, Media: &MediaInput{URL: "https://cdn/x", Type: "hologram"}},
		}
		for _, in := range inputs {
			_, err := svc.AddMessage(context.Background(), in)
			assertCode(t, err, common.CodeBadRequest)
		}
	})
}

func TestMessageService_AddMediaMessage(t *testing.T) {
	sender := &dbmongo.User{ID: primitive.NewObjectID(), UserName: "sam"}
	recipient := primitive.NewObjectID()
	svc, d := newMessageService(t, dbmongo.SequentialTx{})
	chat := directChat(sender.ID, recipient)
	d.presence[recipient] = common.StatusOnline
	mediaID := primitive.NewObjectID()

	d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
	d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
	gomock.InOrder(
		d.media.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmongo.MediaContent) error {
			assert.Equal(t, common.MediaTypeImage, m.Type)
			m.ID = mediaID
			return nil
		}),
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmongo.Message) error {
			require.NotNil(t, m.Media)
			assert.Equal(t, mediaID, *m.Media)
			return nil
		}),
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, gomock.Any(), gomock.Any()).Return(nil),
	)

	msg, err := svc.AddMessage(context.Background(), AddMessageInput{
		SenderID: sender.ID,
		ChatID:   chat.ID,
		Type:     common.MessageMedia,
		Media:    &MediaInput{URL: "https://cdn.example.com/cat.png", MimeType: "image/png"},
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Media)
	assert.Equal(t, mediaID, msg.Media.ID)
}

func TestMessageService_AddMessageCompensation(t *testing.T) {
	sender := &dbmongo.User{ID: primitive.NewObjectID(), UserName: "sam"}
	recipient := primitive.NewObjectID()
	media := &MediaInput{URL: "https://cdn.example.com/doc.pdf", MimeType: "application/pdf"}

	t.Run("sequential writes are undone", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)
		mediaID := primitive.NewObjectID()
		messageID := primitive.NewObjectID()

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.media.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmongo.MediaContent) error {
			m.ID = mediaID
			return nil
		})
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmongo.Message) error {
			m.ID = messageID
			return nil
		})
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, messageID, gomock.Any()).Return(errors.New("write conflict"))
		d.messages.EXPECT().Delete(gomock.Any(), messageID).Return(nil)
		d.media.EXPECT().Delete(gomock.Any(), mediaID).Return(nil)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageMedia, Media: media,
		})
		assertCode(t, err, common.CodeInternal)
		assert.Empty(t, d.bus.topics)
	})

	t.Run("media cleaned up when message insert fails", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(sender.ID, recipient)

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.media.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		d.media.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageMedia, Media: media,
		})
		assertCode(t, err, common.CodeInternal)
	})

	t.Run("transactions roll back on their own", func(t *testing.T) {
		svc, d := newMessageService(t, atomicTx{})
		chat := directChat(sender.ID, recipient)

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.users.EXPECT().FindByID(gomock.Any(), sender.ID).Return(sender, nil)
		d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		d.chats.EXPECT().PushMessage(gomock.Any(), chat.ID, gomock.Any(), gomock.Any()).Return(errors.New("write conflict"))
		d.messages.EXPECT().Delete(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.AddMessage(context.Background(), AddMessageInput{
			SenderID: sender.ID, ChatID: chat.ID, Type: common.MessageText, Content: "hi",
		})
		assertCode(t, err, common.CodeInternal)
	})
}

func TestMessageService_GetMessages(t *testing.T) {
	me := primitive.NewObjectID()
	other := dbmongo.PublicUser{ID: primitive.NewObjectID(), UserName: "omar"}
	mediaID := primitive.NewObjectID()

	t.Run("page with offset", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(me, other.ID)
		items := []dbmongo.Message{
			{ID: primitive.NewObjectID(), Sender: other.ID, Chat: chat.ID, Type: common.MessageMedia, Media: &mediaID, ReadBy: []primitive.ObjectID{other.ID}},
			{ID: primitive.NewObjectID(), Sender: other.ID, Chat: chat.ID, Type: common.MessageText, Content: "yo", ReadBy: []primitive.ObjectID{other.ID, me}},
		}

		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.messages.EXPECT().ListByChat(gomock.Any(), chat.ID, int64(23), int64(10)).Return(items, nil)
		d.messages.EXPECT().CountByChat(gomock.Any(), chat.ID).Return(int64(45), nil)
		d.users.EXPECT().FindPublicByIDs(gomock.Any(), []primitive.ObjectID{other.ID}).Return([]dbmongo.PublicUser{other}, nil)
		d.media.EXPECT().FindByIDs(gomock.Any(), []primitive.ObjectID{mediaID}).
			Return(map[primitive.ObjectID]dbmongo.MediaContent{mediaID: {ID: mediaID, URL: "https://cdn/x.png"}}, nil)

		page, err := svc.GetMessages(context.Background(), GetMessagesQuery{
			RequesterID: me, ChatID: chat.ID, Page: 3, Limit: 10, Offset: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, page.CurrentPage)
		assert.Equal(t, 5, page.TotalPages)
		assert.Equal(t, int64(45), page.TotalMessages)
		require.Len(t, page.Messages, 2)
		assert.False(t, page.Messages[0].IsRead)
		assert.Equal(t, "https://cdn/x.png", page.Messages[0].Media.URL)
		assert.True(t, page.Messages[1].IsRead)
		assert.Equal(t, "omar", page.Messages[1].Sender.UserName)
	})

	t.Run("non participant", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(other.ID, primitive.NewObjectID())
		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)

		_, err := svc.GetMessages(context.Background(), GetMessagesQuery{RequesterID: me, ChatID: chat.ID, Page: 1, Limit: 20})
		assertCode(t, err, common.CodeForbidden)
	})

	t.Run("bad paging", func(t *testing.T) {
		svc, _ := newMessageService(t, dbmongo.SequentialTx{})
		for _, q := range []GetMessagesQuery{
			{Page: 0, Limit: 10},
			{Page: 1, Limit: 0},
			{Page: 1, Limit: 500},
			{Page: 1, Limit: 10, Offset: -1},
			{Page: math.MaxInt64 / 50, Limit: 100},
			{Page: math.MaxInt32/10 + 1, Limit: 10},
			{Page: 1, Limit: 10, Offset: math.MaxInt64},
		} {
			_, err := svc.GetMessages(context.Background(), q)
			assertCode(t, err, common.CodeBadRequest)
		}
	})
}

func TestMessageService_MarkMessagesAsRead(t *testing.T) {
	svc, d := newMessageService(t, dbmongo.SequentialTx{})
	me := primitive.NewObjectID()
	ids := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}

	gomock.InOrder(
		d.messages.EXPECT().MarkRead(gomock.Any(), me, ids).Return(int64(2), nil),
		d.messages.EXPECT().MarkRead(gomock.Any(), me, ids).Return(int64(0), nil),
	)

	changed, err := svc.MarkMessagesAsRead(context.Background(), me, append(ids, ids[0]))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.MarkMessagesAsRead(context.Background(), me, ids)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.MarkMessagesAsRead(context.Background(), me, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMessageService_MarkChatMessagesAsRead(t *testing.T) {
	me := primitive.NewObjectID()

	t.Run("participant", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(me, primitive.NewObjectID())
		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)
		d.messages.EXPECT().MarkChatRead(gomock.Any(), chat.ID, me).Return(int64(4), nil)

		changed, err := svc.MarkChatMessagesAsRead(context.Background(), chat.ID, me)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("outsider", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		chat := directChat(primitive.NewObjectID(), primitive.NewObjectID())
		d.chats.EXPECT().FindByID(gomock.Any(), chat.ID).Return(chat, nil)

		_, err := svc.MarkChatMessagesAsRead(context.Background(), chat.ID, me)
		assertCode(t, err, common.CodeForbidden)
	})
}

func TestMessageService_GetMessageReaders(t *testing.T) {
	sender := primitive.NewObjectID()
	reader := dbmongo.PublicUser{ID: primitive.NewObjectID(), UserName: "rita"}
	msg := &dbmongo.Message{ID: primitive.NewObjectID(), Sender: sender, ReadBy: []primitive.ObjectID{sender, reader.ID}}

	t.Run("sender sees readers", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		d.messages.EXPECT().FindByID(gomock.Any(), msg.ID).Return(msg, nil)
		d.users.EXPECT().FindPublicByIDs(gomock.Any(), msg.ReadBy).Return([]dbmongo.PublicUser{{ID: sender}, reader}, nil)

		readers, err := svc.GetMessageReaders(context.Background(), sender, msg.ID)
		require.NoError(t, err)
		assert.Len(t, readers, 2)
	})

	t.Run("someone else", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		d.messages.EXPECT().FindByID(gomock.Any(), msg.ID).Return(msg, nil)

		_, err := svc.GetMessageReaders(context.Background(), reader.ID, msg.ID)
		assertCode(t, err, common.CodeNotFound)
	})

	t.Run("missing message", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		id := primitive.NewObjectID()
		d.messages.EXPECT().FindByID(gomock.Any(), id).Return(nil, repository.ErrNotFound)

		_, err := svc.GetMessageReaders(context.Background(), sender, id)
		assertCode(t, err, common.CodeNotFound)
	})
}

func TestMessageService_DeleteMessage(t *testing.T) {
	sender := primitive.NewObjectID()
	msg := &dbmongo.Message{ID: primitive.NewObjectID(), Sender: sender}

	t.Run("sender deletes", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		d.messages.EXPECT().FindByID(gomock.Any(), msg.ID).Return(msg, nil)
		d.messages.EXPECT().SoftDelete(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

		assert.NoError(t, svc.DeleteMessage(context.Background(), sender, msg.ID))
	})

	t.Run("other user", func(t *testing.T) {
		svc, d := newMessageService(t, dbmongo.SequentialTx{})
		d.messages.EXPECT().FindByID(gomock.Any(), msg.ID).Return(msg, nil)

		err := svc.DeleteMessage(context.Background(), primitive.NewObjectID(), msg.ID)
		assertCode(t, err, common.CodeForbidden)
	})
}
