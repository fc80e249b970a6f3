package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"collabhub/internal/chat/repository"
	"collabhub/internal/common"
	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ChatService interface {
	CreateChat(ctx context.Context, caller common.Caller, participantIDs []primitive.ObjectID, name string) (*dbmongo.Chat, error)
	AddAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error)
	RemoveAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error)
	AddParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error)
	RemoveParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error)
	LeaveChat(ctx context.Context, userID, chatID primitive.ObjectID) (*LeaveResult, error)
	UpdateChatName(ctx context.Context, chatID primitive.ObjectID, name string, actorID primitive.ObjectID) (*dbmongo.Chat, error)
	FreezeChat(ctx context.Context, caller common.Caller, chatID primitive.ObjectID) (*dbmongo.Chat, error)
	GetChats(ctx context.Context, caller common.Caller) ([]ChatListItem, error)
	GetChatUsers(ctx context.Context, chatID, userID primitive.ObjectID) ([]ChatUser, error)
}

// LeaveResult reports whether leaving removed the chat for good.
type LeaveResult struct {
	ChatID  primitive.ObjectID `json:"chatId"`
	Deleted bool               `json:"deleted"`
}

type ChatListItem struct {
	ID           primitive.ObjectID      `json:"_id"`
	Name         string                  `json:"name,omitempty"`
	Participants []dbmongo.PublicUser    `json:"participants"`
	LastMessage  *repository.LastMessage `json:"lastMessage,omitempty"`
	Metadata     dbmongo.ChatMetadata    `json:"metadata"`
	IsAdmin      bool                    `json:"isAdmin"`
}

type ChatUser struct {
	dbmongo.PublicUser
	IsAdmin bool `json:"isAdmin"`
}

type chatService struct {
	chats  repository.ChatRepository
	users  UserDirectory
	now    func() time.Time
	tracer trace.Tracer
}

func NewChatService(chats repository.ChatRepository, users UserDirectory) ChatService {
	return &chatService{
		chats:  chats,
		users:  users,
		now:    time.Now,
		tracer: otel.Tracer("collabhub/chat"),
	}
}

// chatErr lifts repository failures into the service error taxonomy.
func chatErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return common.NotFound("chat not found")
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return common.Internal("chat storage failure", err)
}

func (s *chatService) CreateChat(ctx context.Context, caller common.Caller, participantIDs []primitive.ObjectID, name string) (*dbmongo.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "chat.CreateChat", trace.WithAttributes(
		attribute.Int("chat.requested_participants", len(participantIDs)),
	))
	defer span.End()

	if len(participantIDs) < common.MinChatParticipants {
		return nil, common.BadRequest("at least one participant is required")
	}
	if len(participantIDs) > common.MaxChatParticipants {
		return nil, common.BadRequest("maximum number of participants exceeded")
	}
	if caller.UserID.IsZero() {
		return nil, common.BadRequest("invalid user id")
	}
	if strings.TrimSpace(name) != "" {
		var err error
		if name, err = common.ValidateChatName(name); err != nil {
			return nil, err
		}
	}

	members := common.UniqueIDs(append(append([]primitive.ObjectID{}, participantIDs...), caller.UserID))
	existing, err := s.users.CountExisting(ctx, members)
	if err != nil {
		return nil, common.Internal("failed to resolve participants", err)
	}
	if existing != int64(len(members)) {
		return nil, common.BadRequest("some users were not found")
	}
	if !caller.IsElevated() && len(members) > 2 {
		return nil, common.BadRequest("only direct chats can be started with your role")
	}

	found, err := s.chats.FindByParticipantSet(ctx, members)
	switch {
	case err == nil:
		if !found.IsDeleted {
			return found, nil
		}
		chat, err := s.chats.Reactivate(ctx, found.ID, s.now().UTC())
		if err != nil {
			return nil, chatErr(err)
		}
		return chat, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, chatErr(err)
	}

	now := s.now().UTC()
	chat := &dbmongo.Chat{
		Participants: members,
		Admins:       []primitive.ObjectID{caller.UserID},
		Messages:     []primitive.ObjectID{},
		Name:         name,
		CreatedBy:    caller.UserID,
		Metadata: dbmongo.ChatMetadata{
			CreatedAt:        now,
			LastActivity:     now,
			ParticipantCount: len(members),
			Type:             common.KindFor(len(members)),
		},
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, common.Internal("chat creation failed", err)
	}
	return chat, nil
}

// loadAsAdmin fetches the chat and checks that actorID administers it.
func (s *chatService) loadAsAdmin(ctx context.Context, chatID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.IsAdmin(actorID) {
		return nil, common.Forbidden("only chat admins can do this")
	}
	return chat, nil
}

func (s *chatService) AddAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.loadAsAdmin(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(targetID) {
		return nil, common.BadRequest("user is not a participant of this chat")
	}
	if chat.IsAdmin(targetID) {
		return nil, common.Forbidden("user is already an admin")
	}

	updated, err := s.chats.AddAdmin(ctx, chatID, targetID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	return updated, nil
}

func (s *chatService) RemoveAdmin(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.loadAsAdmin(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if targetID == chat.CreatedBy {
		return nil, common.Forbidden("the chat creator cannot be removed from admins")
	}
	if !chat.IsAdmin(targetID) {
		return nil, common.BadRequest("user is not an admin")
	}

	updated, err := s.chats.RemoveAdmin(ctx, chatID, targetID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	return updated, nil
}

func (s *chatService) AddParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.loadAsAdmin(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if chat.IsParticipant(targetID) {
		return nil, common.BadRequest("user is already a participant")
	}
	if len(chat.Participants) >= common.MaxChatParticipants {
		return nil, common.BadRequest("maximum number of participants exceeded")
	}
	if _, err := s.users.FindByID(ctx, targetID); err != nil {
		return nil, userErr(err, "user not found")
	}

	updated, err := s.chats.AddParticipant(ctx, chatID, targetID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	return updated, nil
}

func (s *chatService) RemoveParticipant(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.loadAsAdmin(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if targetID == chat.CreatedBy {
		return nil, common.Forbidden("the chat creator cannot be removed")
	}
	if !chat.IsParticipant(targetID) {
		return nil, common.BadRequest("user is not a participant of this chat")
	}

	updated, err := s.chats.RemoveParticipant(ctx, chatID, targetID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	if len(updated.Participants) == 0 {
		if err := s.chats.Delete(ctx, chatID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, chatErr(err)
		}
	}
	return updated, nil
}

// LeaveChat removes userID; the last participant out deletes the chat permanently.
func (s *chatService) LeaveChat(ctx context.Context, userID, chatID primitive.ObjectID) (*LeaveResult, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.IsParticipant(userID) {
		return nil, common.BadRequest("user is not a participant of this chat")
	}

	updated, err := s.chats.RemoveParticipant(ctx, chatID, userID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	if len(updated.Participants) > 0 {
		return &LeaveResult{ChatID: chatID}, nil
	}

	if err := s.chats.Delete(ctx, chatID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, chatErr(err)
	}
	return &LeaveResult{ChatID: chatID, Deleted: true}, nil
}

func (s *chatService) UpdateChatName(ctx context.Context, chatID primitive.ObjectID, name string, actorID primitive.ObjectID) (*dbmongo.Chat, error) {
	name, err := common.ValidateChatName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadAsAdmin(ctx, chatID, actorID); err != nil {
		return nil, err
	}

	updated, err := s.chats.UpdateName(ctx, chatID, name, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	return updated, nil
}

// FreezeChat soft-deletes an active chat. Recreating the same participant set reactivates it.
func (s *chatService) FreezeChat(ctx context.Context, caller common.Caller, chatID primitive.ObjectID) (*dbmongo.Chat, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.IsAdmin(caller.UserID) && !caller.IsElevated() {
		return nil, common.Forbidden("only chat admins can freeze a chat")
	}
	if chat.IsDeleted {
		return nil, common.BadRequest("chat is already frozen")
	}

	updated, err := s.chats.SoftDelete(ctx, chatID, s.now().UTC())
	if err != nil {
		return nil, chatErr(err)
	}
	return updated, nil
}

func (s *chatService) GetChats(ctx context.Context, caller common.Caller) ([]ChatListItem, error) {
	summaries, err := s.chats.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, common.Internal("failed to load chats", err)
	}

	elevated := caller.IsElevated()
	items := make([]ChatListItem, 0, len(summaries))
	for _, c := range summaries {
		participants := c.Participants
		if participants == nil {
			participants = []dbmongo.PublicUser{}
		}
		items = append(items, ChatListItem{
			ID:           c.ID,
			Name:         c.Name,
			Participants: participants,
			LastMessage:  c.LastMessage,
			Metadata:     c.Metadata,
			IsAdmin:      elevated || common.ContainsID(c.Admins, caller.UserID),
		})
	}
	return items, nil
}

// GetChatUsers lists every participant with an admin flag, sorted by user name.
func (s *chatService) GetChatUsers(ctx context.Context, chatID, userID primitive.ObjectID) ([]ChatUser, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.IsParticipant(userID) {
		return nil, common.Forbidden("you are not a participant of this chat")
	}

	users, err := s.users.FindPublicByIDs(ctx, chat.Participants)
	if err != nil {
		return nil, common.Internal("failed to load chat users", err)
	}
	if len(users) == 0 {
		return nil, common.NotFound("chat has no users")
	}

	out := make([]ChatUser, 0, len(users))
	for _, u := range users {
		out = append(out, ChatUser{PublicUser: u, IsAdmin: chat.IsAdmin(u.ID)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].UserName) < strings.ToLower(out[j].UserName)
	})
	return out, nil
}
