package handler

import (
	"context"

	"collabhub/internal/chat/service"
	"collabhub/internal/common"
	"collabhub/internal/dbmongo"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MockChatService struct {
	mock.Mock
}

func chatResult(args mock.Arguments) (*dbmongo.Chat, error) {
	if c := args.Get(0); c != nil {
		return c.(*dbmongo.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatService) CreateChat(ctx context.Context, caller common.Caller, participantIDs []primitive.ObjectID, name string) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, caller, participantIDs, name))
}

func (m *MockChatService) AddAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, chatID, targetID, actorID))
}

func (m *MockChatService) RemoveAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, chatID, targetID, actorID))
}

func (m *MockChatService) AddParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, chatID, targetID, actorID))
}

func (m *MockChatService) RemoveParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, chatID, targetID, actorID))
}

func (m *MockChatService) LeaveChat(ctx context.Context, userID, chatID primitive.ObjectID) (*service.LeaveResult, error) {
	args := m.Called(ctx, userID, chatID)
	if r := args.Get(0); r != nil {
		return r.(*service.LeaveResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatService) UpdateChatName(ctx context.Context, chatID primitive.ObjectID, name string, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, chatID, name, actorID))
}

func (m *MockChatService) FreezeChat(ctx context.Context, caller common.Caller, chatID primitive.ObjectID) (*dbmongo.Chat, error) {
	return chatResult(m.Called(ctx, caller, chatID))
}

func (m *MockChatService) GetChats(ctx context.Context, caller common.Caller) ([]service.ChatListItem, error) {
	args := m.Called(ctx, caller)
	items, _ := args.Get(0).([]service.ChatListItem)
	return items, args.Error(1)
}

func (m *MockChatService) GetChatUsers(ctx context.Context, chatID, userID primitive.ObjectID) ([]service.ChatUser, error) {
	args := m.Called(ctx, chatID, userID)
	users, _ := args.Get(0).([]service.ChatUser)
	return users, args.Error(1)
}

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) AddMessage(ctx context.Context, in service.AddMessageInput) (*service.EnrichedMessage, error) {
	args := m.Called(ctx, in)
	msg, _ := args.Get(0).(*service.EnrichedMessage)
	return msg, args.Error(1)
}

func (m *MockMessageService) GetMessages(ctx context.Context, q service.GetMessagesQuery) (*service.MessagePage, error) {
	args := m.Called(ctx, q)
	page, _ := args.Get(0).(*service.MessagePage)
	return page, args.Error(1)
}

func (m *MockMessageService) MarkMessagesAsRead(ctx context.Context, userID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, userID, messageIDs)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageService) MarkChatMessagesAsRead(ctx context.Context, chatID, userID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageService) GetMessageReaders(ctx context.Context, requesterID, messageID primitive.ObjectID) ([]dbmongo.PublicUser, error) {
	args := m.Called(ctx, requesterID, messageID)
	readers, _ := args.Get(0).([]dbmongo.PublicUser)
	return readers, args.Error(1)
}

func (m *MockMessageService) DeleteMessage(ctx context.Context, requesterID, messageID primitive.ObjectID) error {
	return m.Called(ctx, requesterID, messageID).Error(0)
}

type MockStatusSetter struct {
	mock.Mock
}

func (m *MockStatusSetter) SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) error {
	return m.Called(ctx, userID, status).Error(0)
}
