// Package handler exposes the chat directory and message store over HTTP and websockets.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"collabhub/internal/chat/service"
	"collabhub/internal/common"
	"collabhub/internal/dbmongo"
	"collabhub/internal/ws"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusSetter is the presence write path used by the session layer.
type StatusSetter interface {
	SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) error
}

type ChatHandler struct {
	chats    service.ChatService
	messages service.MessageService
	presence StatusSetter
	broker   ws.Subscriber
}

func NewChatHandler(chats service.ChatService, messages service.MessageService, presence StatusSetter, broker ws.Subscriber) *ChatHandler {
	return &ChatHandler{
		chats:    chats,
		messages: messages,
		presence: presence,
		broker:   broker,
	}
}

// RegisterRoutes mounts the chat API on an authenticated router.
func (h *ChatHandler) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/chats", h.CreateChat).Methods(http.MethodPost)
	api.HandleFunc("/chats", h.GetChats).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatID}/users", h.GetChatUsers).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatID}/name", h.UpdateChatName).Methods(http.MethodPut)
	api.HandleFunc("/chats/{chatID}/admins", h.AddAdmin).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatID}/admins/{userID}", h.RemoveAdmin).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{chatID}/participants", h.AddParticipant).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatID}/participants/{userID}", h.RemoveParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{chatID}/leave", h.LeaveChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatID}/freeze", h.FreezeChat).Methods(http.MethodPost)

	api.HandleFunc("/chats/{chatID}/messages", h.AddMessage).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatID}/messages", h.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatID}/read", h.MarkChatMessagesAsRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/read", h.MarkMessagesAsRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageID}/readers", h.GetMessageReaders).Methods(http.MethodGet)
	api.HandleFunc("/messages/{messageID}", h.DeleteMessage).Methods(http.MethodDelete)

	api.HandleFunc("/presence", h.SetStatus).Methods(http.MethodPut)

	api.HandleFunc("/ws/chats/{chatID}", h.StreamChat).Methods(http.MethodGet)
	api.HandleFunc("/ws/presence/{userID}", h.StreamPresence).Methods(http.MethodGet)
}

func callerOrReject(w http.ResponseWriter, r *http.Request) (common.Caller, bool) {
	caller, ok := common.CallerFrom(r.Context())
	if !ok {
		common.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
	}
	return caller, ok
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.BadRequest("invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	return common.ParseObjectID(name, mux.Vars(r)[name])
}

type createChatRequest struct {
	Participants []string `json:"participants"`
	Name         string   `json:"name"`
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	participants, err := common.ParseObjectIDs("participants", req.Participants)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	chat, err := h.chats.CreateChat(r.Context(), caller, participants, req.Name)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chats, err := h.chats.GetChats(r.Context(), caller)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (h *ChatHandler) GetChatUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	users, err := h.chats.GetChatUsers(r.Context(), chatID, caller.UserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *ChatHandler) UpdateChatName(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}

	chat, err := h.chats.UpdateChatName(r.Context(), chatID, req.Name, caller.UserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, chat)
}

type memberRequest struct {
	UserID string `json:"userId"`
}

type memberOp func(ctx context.Context, chatID, targetID, actorID primitive.ObjectID) (*dbmongo.Chat, error)

// membership runs one of the admin/participant operations. The target comes
// from the body on POST and from the path on DELETE.
func (h *ChatHandler) membership(w http.ResponseWriter, r *http.Request, op memberOp) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}

	var targetID primitive.ObjectID
	if _, inPath := mux.Vars(r)["userID"]; inPath {
		targetID, err = pathID(r, "userID")
	} else {
		var req memberRequest
		if err = decode(r, &req); err == nil {
			targetID, err = common.ParseObjectID("userId", req.UserID)
		}
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}

	chat, err := op(r.Context(), chatID, targetID, caller.UserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chats.AddAdmin)
}

func (h *ChatHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chats.RemoveAdmin)
}

func (h *ChatHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chats.AddParticipant)
}

func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chats.RemoveParticipant)
}

func (h *ChatHandler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.chats.LeaveChat(r.Context(), caller.UserID, chatID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) FreezeChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	chat, err := h.chats.FreezeChat(r.Context(), caller, chatID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req struct {
		Status common.UserStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.presence.SetStatus(r.Context(), caller.UserID, req.Status); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
