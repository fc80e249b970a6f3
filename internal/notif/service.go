package notif

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"collabhub/internal/common"
	"collabhub/internal/config"
	"collabhub/internal/dbmongo"
	"collabhub/internal/presence"
	"collabhub/internal/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// UserDirectory is the part of the user store the dispatcher reads.
type UserDirectory interface {
	FindByID(ctx context.Context, userID primitive.ObjectID) (*dbmongo.User, error)
	FindPublicByIDs(ctx context.Context, userIDs []primitive.ObjectID) ([]dbmongo.PublicUser, error)
}

type CreateInput struct {
	SenderID     primitive.ObjectID
	RecipientIDs []primitive.ObjectID
	Type         common.NotificationType
	ContentID    primitive.ObjectID
	ContentType  common.ContentType
	Message      string
	// PresenceFiltered marks recipients that already exclude online users.
	PresenceFiltered bool
}

// NotificationView is a notification with sender and content populated.
type NotificationView struct {
	ID          primitive.ObjectID      `json:"_id"`
	Recipients  []primitive.ObjectID    `json:"recipients"`
	Sender      dbmongo.PublicUser      `json:"sender"`
	Type        common.NotificationType `json:"type"`
	ContentID   primitive.ObjectID      `json:"contentId"`
	Content     Content                 `json:"content,omitempty"`
	ContentType common.ContentType      `json:"contentType"`
	Message     string                  `json:"message"`
	IsRead      bool                    `json:"isRead"`
	CreatedAt   time.Time               `json:"createdAt"`
}

type Dispatcher struct {
	repo     NotificationRepository
	users    UserDirectory
	content  ContentStore
	presence common.PresenceReader
	cfg      config.NotificationConfig

	mu        sync.RWMutex
	observers map[string]Observer

	now    func() time.Time
	tracer trace.Tracer
}

func NewDispatcher(
	cfg *config.Config,
	repo NotificationRepository,
	users UserDirectory,
	content ContentStore,
	presence common.PresenceReader,
	bus common.Publisher,
) *Dispatcher {
	d := &Dispatcher{
		repo:      repo,
		users:     users,
		content:   content,
		presence:  presence,
		cfg:       cfg.Notification,
		observers: make(map[string]Observer),
		now:       time.Now,
		tracer:    otel.Tracer("collabhub/notif"),
	}
	d.Subscribe(NewLiveObserver(bus))
	return d
}

func (d *Dispatcher) Subscribe(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers[observer.Name()] = observer
}

func (d *Dispatcher) unsubscribe(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, observer.Name())
}

func (d *Dispatcher) notify(ctx context.Context, view NotificationView) {
	d.mu.RLock()
	observers := make([]Observer, 0, len(d.observers))
	for _, obs := range d.observers {
		observers = append(observers, obs)
	}
	d.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.Update(ctx, view); err != nil {
			log.Printf("Observer %s update failed: %v", observer.Name(), err)
		}
	}
}

// CreateNotification persists one notification for the resolvable recipients and
// pushes it live. It returns nil, nil when nobody is left to notify.
func (d *Dispatcher) CreateNotification(ctx context.Context, in CreateInput) (*dbmongo.Notification, error) {
	ctx, span := d.tracer.Start(ctx, "notif.CreateNotification", trace.WithAttributes(
		attribute.String("notification.type", string(in.Type)),
		attribute.Int("notification.recipients", len(in.RecipientIDs)),
	))
	defer span.End()

	n, err := d.createNotification(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (d *Dispatcher) createNotification(ctx context.Context, in CreateInput) (*dbmongo.Notification, error) {
	if !in.Type.IsValid() {
		return nil, common.BadRequest("invalid notification type: " + string(in.Type))
	}
	if !in.ContentType.IsValid() {
		return nil, common.BadRequest("invalid content type: " + string(in.ContentType))
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, common.BadRequest("notification message is required")
	}

	recipientIDs := common.UniqueIDs(in.RecipientIDs)
	if len(recipientIDs) == 0 {
		return nil, nil
	}

	var (
		sender     *dbmongo.User
		recipients []dbmongo.PublicUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sender, err = d.users.FindByID(gctx, in.SenderID)
		return err
	})
	g.Go(func() error {
		var err error
		recipients, err = d.users.FindPublicByIDs(gctx, recipientIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, common.NotFound("sender not found")
		}
		return nil, common.Internal("failed to resolve notification users", err)
	}

	resolved := make([]primitive.ObjectID, 0, len(recipients))
	for _, r := range recipients {
		resolved = append(resolved, r.ID)
	}
	if len(resolved) == 0 {
		return nil, common.NotFound("no recipients found")
	}

	if in.Type == common.NotificationDirectMessage && !in.PresenceFiltered {
		resolved = presence.Notifiable(ctx, d.presence, resolved)
		if len(resolved) == 0 {
			return nil, nil
		}
	}

	n := &dbmongo.Notification{
		Recipients:  resolved,
		Sender:      sender.ID,
		Type:        in.Type,
		Content:     in.ContentID,
		ContentType: in.ContentType,
		Message:     message,
		IsRead:      false,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return nil, common.Internal("failed to save notification", err)
	}

	view := NotificationView{
		ID:          n.ID,
		Recipients:  n.Recipients,
		Sender:      sender.Public(),
		Type:        n.Type,
		ContentID:   n.Content,
		ContentType: n.ContentType,
		Message:     n.Message,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
	if content, err := ResolveContent(ctx, d.content, n.ContentType, n.Content); err == nil {
		view.Content = content
	} else {
		log.Printf("notification %s: content %s %s not resolved: %v", n.ID.Hex(), n.ContentType, n.Content.Hex(), err)
	}
	d.notify(ctx, view)

	return n, nil
}

// GetNotificationsForUser lists unexpired notifications that are unread or
// recent, newest first, with sender and content populated.
func (d *Dispatcher) GetNotificationsForUser(ctx context.Context, userID primitive.ObjectID) ([]NotificationView, error) {
	now := d.now().UTC()
	items, err := d.repo.FindForUser(ctx, userID, now.Add(-d.cfg.TTL), now.Add(-d.cfg.VisibleWindow))
	if err != nil {
		return nil, common.Internal("failed to load notifications", err)
	}

	senderIDs := make([]primitive.ObjectID, 0, len(items))
	for _, n := range items {
		senderIDs = append(senderIDs, n.Sender)
	}
	senders, err := d.users.FindPublicByIDs(ctx, common.UniqueIDs(senderIDs))
	if err != nil {
		return nil, common.Internal("failed to load notification senders", err)
	}
	byID := make(map[primitive.ObjectID]dbmongo.PublicUser, len(senders))
	for _, s := range senders {
		byID[s.ID] = s
	}

	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		view := NotificationView{
			ID:          n.ID,
			Recipients:  n.Recipients,
			Sender:      byID[n.Sender],
			Type:        n.Type,
			ContentID:   n.Content,
			ContentType: n.ContentType,
			Message:     n.Message,
			IsRead:      n.IsRead,
			CreatedAt:   n.CreatedAt,
		}
		if view.Sender.ID.IsZero() {
			view.Sender.ID = n.Sender
		}
		content, err := ResolveContent(ctx, d.content, n.ContentType, n.Content)
		switch {
		case err == nil:
			view.Content = content
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownContentType):
			// referenced document is gone; keep the notification without it
		default:
			return nil, common.Internal("failed to load notification content", err)
		}
		views = append(views, view)
	}
	return views, nil
}

func (d *Dispatcher) MarkAsRead(ctx context.Context, notificationID, userID primitive.ObjectID) error {
	err := d.repo.MarkRead(ctx, notificationID, userID)
	if errors.Is(err, ErrNotFound) {
		return common.NotFound("notification not found")
	}
	if err != nil {
		return common.Internal("failed to mark notification read", err)
	}
	return nil
}

// CreateNotificationEvent is the payload of a queued create_notification event.
type CreateNotificationEvent struct {
	SenderID     string   `json:"senderId"`
	RecipientIDs []string `json:"recipientIds"`
	Type         string   `json:"type"`
	Content      struct {
		ID string `json:"_id"`
	} `json:"content"`
	ContentType string `json:"contentType"`
	Message     string `json:"message"`
}

func (e CreateNotificationEvent) ToInput() (CreateInput, error) {
	senderID, err := common.ParseObjectID("senderId", e.SenderID)
	if err != nil {
		return CreateInput{}, err
	}
	recipients, err := common.ParseObjectIDs("recipientIds", e.RecipientIDs)
	if err != nil {
		return CreateInput{}, err
	}
	contentID, err := common.ParseObjectID("content._id", e.Content.ID)
	if err != nil {
		return CreateInput{}, err
	}
	return CreateInput{
		SenderID:     senderID,
		RecipientIDs: recipients,
		Type:         common.NotificationType(e.Type),
		ContentID:    contentID,
		ContentType:  common.ContentType(e.ContentType),
		Message:      e.Message,
	}, nil
}

// HandleCreateEvent is the queue entry point for create_notification.
func (d *Dispatcher) HandleCreateEvent(ctx context.Context, data []byte) error {
	var event CreateNotificationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return common.Wrap(common.CodeBadRequest, "malformed create_notification payload", err)
	}
	in, err := event.ToInput()
	if err != nil {
		return err
	}
	n, err := d.CreateNotification(ctx, in)
	if err != nil {
		return fmt.Errorf("create_notification from %s: %w", event.SenderID, err)
	}
	if n != nil {
		log.Printf("Notification %s created for %d recipients", n.ID.Hex(), len(n.Recipients))
	}
	return nil
}
