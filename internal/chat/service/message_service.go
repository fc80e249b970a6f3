package service

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"collabhub/internal/chat/repository"
	"collabhub/internal/common"
	"collabhub/internal/dbmongo"
	"collabhub/internal/notif"
	"collabhub/internal/presence"
	"collabhub/internal/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const maxPageSize = 100

type MessageService interface {
	AddMessage(ctx context.Context, in AddMessageInput) (*EnrichedMessage, error)
	GetMessages(ctx context.Context, q GetMessagesQuery) (*MessagePage, error)
	MarkMessagesAsRead(ctx context.Context, userID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error)
	MarkChatMessagesAsRead(ctx context.Context, chatID, userID primitive.ObjectID) (bool, error)
	GetMessageReaders(ctx context.Context, requesterID, messageID primitive.ObjectID) ([]dbmongo.PublicUser, error)
	DeleteMessage(ctx context.Context, requesterID, messageID primitive.ObjectID) error
}

type MediaInput struct {
	Type      common.MediaType `json:"type"`
	URL       string           `json:"url"`
	Thumbnail string           `json:"thumbnail,omitempty"`
	Duration  float64          `json:"duration,omitempty"`
	Size      int64            `json:"size,omitempty"`
	MimeType  string           `json:"mimeType,omitempty"`
	FileName  string           `json:"fileName,omitempty"`
}

type AddMessageInput struct {
	SenderID primitive.ObjectID
	ChatID   primitive.ObjectID
	Type     common.MessageKind
	Content  string
	Media    *MediaInput
}

// EnrichedMessage is a message with its sender and media resolved. It is what
// chat subscribers receive and what history pages contain.
type EnrichedMessage struct {
	ID        primitive.ObjectID    `json:"_id"`
	ChatID    primitive.ObjectID    `json:"chatId"`
	Sender    dbmongo.PublicUser    `json:"sender"`
	Type      common.MessageKind    `json:"type"`
	Content   string                `json:"content,omitempty"`
	Media     *dbmongo.MediaContent `json:"mediaContent,omitempty"`
	IsRead    bool                  `json:"isRead"`
	CreatedAt time.Time             `json:"createdAt"`
}

type GetMessagesQuery struct {
	RequesterID primitive.ObjectID
	ChatID      primitive.ObjectID
	Page        int
	Limit       int
	// Offset shifts the page window by extra messages already shown to the client.
	Offset int
}

type MessagePage struct {
	Messages      []EnrichedMessage `json:"messages"`
	CurrentPage   int               `json:"currentPage"`
	TotalPages    int               `json:"totalPages"`
	TotalMessages int64             `json:"totalMessages"`
}

type messageService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	media    repository.MediaRepository
	users    UserDirectory
	presence common.PresenceReader
	notifier Notifier
	bus      common.Publisher
	tx       dbmongo.TxRunner
	now      func() time.Time
	tracer   trace.Tracer
}

func NewMessageService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	media repository.MediaRepository,
	users UserDirectory,
	presence common.PresenceReader,
	notifier Notifier,
	bus common.Publisher,
	tx dbmongo.TxRunner,
) MessageService {
	return &messageService{
		chats:    chats,
		messages: messages,
		media:    media,
		users:    users,
		presence: presence,
		notifier: notifier,
		bus:      bus,
		tx:       tx,
		now:      time.Now,
		tracer:   otel.Tracer("collabhub/chat"),
	}
}

func userErr(err error, msg string) error {
	if errors.Is(err, user.ErrUserNotFound) {
		return common.NotFound(msg)
	}
	return common.Internal("user lookup failed", err)
}

func messageErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return common.NotFound("message not found")
	}
	return common.Internal("message storage failure", err)
}

func validateMessage(in *AddMessageInput) error {
	if !in.Type.IsValid() {
		return common.BadRequest("invalid message type: " + string(in.Type))
	}
	in.Content = strings.TrimSpace(in.Content)
	switch in.Type {
	case common.MessageText:
		if in.Content == "" {
			return common.BadRequest("text messages need content")
		}
	case common.MessageMedia:
		if in.Media == nil || strings.TrimSpace(in.Media.URL) == "" {
			return common.BadRequest("media messages need a media url")
		}
	}
	if in.Media != nil {
		if in.Media.Type == "" {
			in.Media.Type = common.DetectMediaType(in.Media.MimeType)
		}
		if !in.Media.Type.IsValid() {
			return common.BadRequest("invalid media type: " + string(in.Media.Type))
		}
	}
	return nil
}

// AddMessage stores a message (and its media) in a chat, pushes it to chat
// subscribers and notifies offline participants.
func (s *messageService) AddMessage(ctx context.Context, in AddMessageInput) (*EnrichedMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.AddMessage", trace.WithAttributes(
		attribute.String("chat.id", in.ChatID.Hex()),
		attribute.String("message.type", string(in.Type)),
	))
	defer span.End()

	msg, err := s.addMessage(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return msg, err
}

func (s *messageService) addMessage(ctx context.Context, in AddMessageInput) (*EnrichedMessage, error) {
	if err := validateMessage(&in); err != nil {
		return nil, err
	}

	var (
		chat   *dbmongo.Chat
		sender *dbmongo.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if chat, err = s.chats.FindByID(gctx, in.ChatID); err != nil {
			return chatErr(err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if sender, err = s.users.FindByID(gctx, in.SenderID); err != nil {
			return userErr(err, "sender not found")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !chat.IsParticipant(sender.ID) {
		return nil, common.Forbidden("sender is not a participant of this chat")
	}
	if chat.IsDeleted {
		return nil, common.Forbidden("chat is frozen")
	}

	now := s.now().UTC()
	var media *dbmongo.MediaContent
	if in.Media != nil {
		media = &dbmongo.MediaContent{
			Type:      in.Media.Type,
			URL:       strings.TrimSpace(in.Media.URL),
			Thumbnail: in.Media.Thumbnail,
			Duration:  in.Media.Duration,
			Size:      in.Media.Size,
			MimeType:  in.Media.MimeType,
			FileName:  in.Media.FileName,
			CreatedAt: now,
		}
	}
	msg := &dbmongo.Message{
		Sender:    sender.ID,
		Chat:      chat.ID,
		Type:      in.Type,
		Content:   in.Content,
		ReadBy:    []primitive.ObjectID{sender.ID},
		CreatedAt: now,
	}

	if err := s.persist(ctx, chat.ID, msg, media); err != nil {
		return nil, err
	}

	enriched := &EnrichedMessage{
		ID:        msg.ID,
		ChatID:    chat.ID,
		Sender:    sender.Public(),
		Type:      msg.Type,
		Content:   msg.Content,
		Media:     media,
		IsRead:    true,
		CreatedAt: msg.CreatedAt,
	}
	s.bus.Publish(common.TopicChatMessage, *enriched)

	s.notifyOffline(ctx, chat, sender)
	return enriched, nil
}

// persist writes media, message and the chat's message list. Without a
// transaction the earlier writes are undone by hand when a later one fails.
func (s *messageService) persist(ctx context.Context, chatID primitive.ObjectID, msg *dbmongo.Message, media *dbmongo.MediaContent) error {
	var mediaSaved, messageSaved bool

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if media != nil {
			if err := s.media.Create(ctx, media); err != nil {
				return common.Internal("failed to save media", err)
			}
			mediaSaved = true
			msg.Media = &media.ID
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return common.Internal("failed to save message", err)
		}
		messageSaved = true
		if err := s.chats.PushMessage(ctx, chatID, msg.ID, msg.CreatedAt); err != nil {
			return chatErr(err)
		}
		return nil
	})
	if err == nil || s.tx.Atomic() {
		return err
	}

	cleanup := context.WithoutCancel(ctx)
	if messageSaved {
		if derr := s.messages.Delete(cleanup, msg.ID); derr != nil {
			log.Printf("Failed to roll back message %s: %v", msg.ID.Hex(), derr)
		}
	}
	if mediaSaved {
		if derr := s.media.Delete(cleanup, media.ID); derr != nil {
			log.Printf("Failed to roll back media %s: %v", media.ID.Hex(), derr)
		}
	}
	return err
}

// notifyOffline sends one direct-message notification to participants that are
// not online. Failures never fail the message.
func (s *messageService) notifyOffline(ctx context.Context, chat *dbmongo.Chat, sender *dbmongo.User) {
	if s.notifier == nil {
		return
	}
	recipients := presence.Notifiable(ctx, s.presence, common.RemoveID(chat.Participants, sender.ID))
	if len(recipients) == 0 {
		return
	}

	_, err := s.notifier.CreateNotification(ctx, notif.CreateInput{
		SenderID:         sender.ID,
		RecipientIDs:     recipients,
		Type:             common.NotificationDirectMessage,
		ContentID:        sender.ID,
		ContentType:      common.ContentUser,
		Message:          "New message from " + sender.UserName,
		PresenceFiltered: true,
	})
	if err != nil {
		log.Printf("Direct message notification for chat %s failed: %v", chat.ID.Hex(), err)
	}
}

func (s *messageService) GetMessages(ctx context.Context, q GetMessagesQuery) (*MessagePage, error) {
	if q.Page < 1 {
		return nil, common.BadRequest("page must be at least 1")
	}
	if q.Limit < 1 || q.Limit > maxPageSize {
		return nil, common.BadRequest("limit must be between 1 and 100")
	}
	if q.Offset < 0 {
		return nil, common.BadRequest("offset cannot be negative")
	}
	if q.Page > math.MaxInt32/q.Limit || q.Offset > math.MaxInt32 {
		return nil, common.BadRequest("page or offset out of range")
	}

	chat, err := s.chats.FindByID(ctx, q.ChatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.IsParticipant(q.RequesterID) {
		return nil, common.Forbidden("you are not a participant of this chat")
	}

	skip := int64(q.Page-1)*int64(q.Limit) + int64(q.Offset)
	var (
		items []dbmongo.Message
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.messages.ListByChat(gctx, q.ChatID, skip, int64(q.Limit))
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.messages.CountByChat(gctx, q.ChatID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, common.Internal("failed to load messages", err)
	}

	messages, err := s.enrich(ctx, items, q.RequesterID)
	if err != nil {
		return nil, err
	}
	return &MessagePage{
		Messages:      messages,
		CurrentPage:   q.Page,
		TotalPages:    int(math.Ceil(float64(total) / float64(q.Limit))),
		TotalMessages: total,
	}, nil
}

func (s *messageService) enrich(ctx context.Context, items []dbmongo.Message, requesterID primitive.ObjectID) ([]EnrichedMessage, error) {
	senderIDs := make([]primitive.ObjectID, 0, len(items))
	mediaIDs := make([]primitive.ObjectID, 0)
	for _, m := range items {
		senderIDs = append(senderIDs, m.Sender)
		if m.Media != nil {
			mediaIDs = append(mediaIDs, *m.Media)
		}
	}

	var (
		senders []dbmongo.PublicUser
		media   map[primitive.ObjectID]dbmongo.MediaContent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		senders, err = s.users.FindPublicByIDs(gctx, common.UniqueIDs(senderIDs))
		return err
	})
	g.Go(func() error {
		var err error
		media, err = s.media.FindByIDs(gctx, mediaIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, common.Internal("failed to enrich messages", err)
	}

	byID := make(map[primitive.ObjectID]dbmongo.PublicUser, len(senders))
	for _, u := range senders {
		byID[u.ID] = u
	}

	out := make([]EnrichedMessage, 0, len(items))
	for _, m := range items {
		sender, ok := byID[m.Sender]
		if !ok {
			sender = dbmongo.PublicUser{ID: m.Sender}
		}
		em := EnrichedMessage{
			ID:        m.ID,
			ChatID:    m.Chat,
			Sender:    sender,
			Type:      m.Type,
			Content:   m.Content,
			IsRead:    m.IsReadBy(requesterID),
			CreatedAt: m.CreatedAt,
		}
		if m.Media != nil {
			if mc, ok := media[*m.Media]; ok {
				em.Media = &mc
			}
		}
		out = append(out, em)
	}
	return out, nil
}

func (s *messageService) MarkMessagesAsRead(ctx context.Context, userID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	ids := common.UniqueIDs(messageIDs)
	if len(ids) == 0 {
		return false, nil
	}
	modified, err := s.messages.MarkRead(ctx, userID, ids)
	if err != nil {
		return false, common.Internal("failed to mark messages read", err)
	}
	return modified > 0, nil
}

func (s *messageService) MarkChatMessagesAsRead(ctx context.Context, chatID, userID primitive.ObjectID) (bool, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return false, chatErr(err)
	}
	if !chat.IsParticipant(userID) {
		return false, common.Forbidden("you are not a participant of this chat")
	}
	modified, err := s.messages.MarkChatRead(ctx, chatID, userID)
	if err != nil {
		return false, common.Internal("failed to mark chat read", err)
	}
	return modified > 0, nil
}

// GetMessageReaders is only answered for the message's own sender; anyone else
// gets NotFound.
func (s *messageService) GetMessageReaders(ctx context.Context, requesterID, messageID primitive.ObjectID) ([]dbmongo.PublicUser, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, messageErr(err)
	}
	if msg.Sender != requesterID {
		return nil, common.NotFound("message not found")
	}

	readers, err := s.users.FindPublicByIDs(ctx, msg.ReadBy)
	if err != nil {
		return nil, common.Internal("failed to load readers", err)
	}
	return readers, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, requesterID, messageID primitive.ObjectID) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return messageErr(err)
	}
	if msg.Sender != requesterID {
		return common.Forbidden("only the sender can delete a message")
	}
	if err := s.messages.SoftDelete(ctx, messageID, s.now().UTC()); err != nil {
		return messageErr(err)
	}
	return nil
}
