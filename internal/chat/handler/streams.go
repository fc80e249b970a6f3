package handler

import (
	"context"
	"net/http"

	"collabhub/internal/bus"
	"collabhub/internal/chat/service"
	"collabhub/internal/common"
	"collabhub/internal/presence"
	"collabhub/internal/ws"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func chatPredicate(chatID primitive.ObjectID) bus.Predicate {
	return func(_ context.Context, payload interface{}) bool {
		msg, ok := payload.(service.EnrichedMessage)
		return ok && msg.ChatID == chatID
	}
}

func presencePredicate(userID primitive.ObjectID) bus.Predicate {
	return func(_ context.Context, payload interface{}) bool {
		change, ok := payload.(presence.StatusChange)
		return ok && change.UserID == userID
	}
}

// StreamChat pushes new messages of one chat. Membership is checked once, when
// the socket is opened.
func (h *ChatHandler) StreamChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if _, err := h.chats.GetChatUsers(r.Context(), chatID, caller.UserID); err != nil {
		common.WriteError(w, err)
		return
	}
	ws.Stream(w, r, h.broker, common.TopicChatMessage, chatPredicate(chatID))
}

func (h *ChatHandler) StreamPresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerOrReject(w, r); !ok {
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	ws.Stream(w, r, h.broker, common.TopicUserStatus, presencePredicate(userID))
}
