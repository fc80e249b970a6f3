package handler

import (
	"net/http"
	"strconv"

	"collabhub/internal/chat/service"
	"collabhub/internal/common"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

type addMessageRequest struct {
	Type    common.MessageKind  `json:"type"`
	Content string              `json:"content"`
	Media   *service.MediaInput `json:"mediaContent"`
}

func (h *ChatHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req addMessageRequest
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}

	msg, err := h.messages.AddMessage(r.Context(), service.AddMessageInput{
		SenderID: caller.UserID,
		ChatID:   chatID,
		Type:     req.Type,
		Content:  req.Content,
		Media:    req.Media,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, msg)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.BadRequest(name + " must be a number")
	}
	return v, nil
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}

	q := service.GetMessagesQuery{RequesterID: caller.UserID, ChatID: chatID}
	if q.Page, err = queryInt(r, "page", defaultPage); err != nil {
		common.WriteError(w, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit", defaultLimit); err != nil {
		common.WriteError(w, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		common.WriteError(w, err)
		return
	}

	page, err := h.messages.GetMessages(r.Context(), q)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, page)
}

func (h *ChatHandler) MarkChatMessagesAsRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	changed, err := h.messages.MarkChatMessagesAsRead(r.Context(), chatID, caller.UserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"success": changed})
}

func (h *ChatHandler) MarkMessagesAsRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := decode(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ids, err := common.ParseObjectIDs("messageIds", req.MessageIDs)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	changed, err := h.messages.MarkMessagesAsRead(r.Context(), caller.UserID, ids)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"success": changed})
}

func (h *ChatHandler) GetMessageReaders(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	readers, err := h.messages.GetMessageReaders(r.Context(), caller.UserID, messageID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{"readers": readers})
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.messages.DeleteMessage(r.Context(), caller.UserID, messageID); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
