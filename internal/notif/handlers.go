package notif

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"collabhub/internal/common"
	"collabhub/internal/ws"

	"github.com/gorilla/mux"
)

// EventPublisher enqueues cross-process events; *queue.Producer implements it.
type EventPublisher interface {
	Publish(ctx context.Context, pattern string, data interface{}) (string, error)
}

type NotificationHandler struct {
	dispatcher *Dispatcher
	events     EventPublisher
	broker     ws.Subscriber
}

func NewNotificationHandler(dispatcher *Dispatcher, events EventPublisher, broker ws.Subscriber) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		events:     events,
		broker:     broker,
	}
}

// RegisterRoutes mounts the notification API on an authenticated router.
func (h *NotificationHandler) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/notifications", h.GetNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/events", h.EnqueueEvent).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{notificationID}/read", h.MarkAsRead).Methods(http.MethodPut)
	api.HandleFunc("/ws/notifications", h.Stream).Methods(http.MethodGet)
}

func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := common.CallerFrom(r.Context())
	if !ok {
		common.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
		return
	}

	views, err := h.dispatcher.GetNotificationsForUser(r.Context(), caller.UserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": views,
		"count":         len(views),
	})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := common.CallerFrom(r.Context())
	if !ok {
		common.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
		return
	}
	notificationID, err := common.ParseObjectID("notificationID", mux.Vars(r)["notificationID"])
	if err != nil {
		common.WriteError(w, err)
		return
	}

	if err := h.dispatcher.MarkAsRead(r.Context(), notificationID, caller.UserID); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// EnqueueEvent validates a create_notification request and hands it to the work queue.
func (h *NotificationHandler) EnqueueEvent(w http.ResponseWriter, r *http.Request) {
	var event CreateNotificationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		common.WriteError(w, common.BadRequest("invalid request body"))
		return
	}
	in, err := event.ToInput()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !in.Type.IsValid() || !in.ContentType.IsValid() {
		common.WriteError(w, common.BadRequest("invalid notification type or content type"))
		return
	}

	msgID, err := h.events.Publish(r.Context(), common.EventCreateNotification, event)
	if err != nil {
		log.Printf("Failed to enqueue notification from %s: %v", event.SenderID, err)
		common.WriteError(w, common.Internal("failed to enqueue notification", err))
		return
	}
	common.WriteJSON(w, http.StatusAccepted, map[string]string{"eventId": msgID})
}

// Stream pushes newNotification events addressed to the caller.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := common.CallerFrom(r.Context()); !ok {
		common.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
		return
	}
	ws.Stream(w, r, h.broker, common.TopicNotification, RecipientPredicate)
}
