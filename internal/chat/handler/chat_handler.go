// Package handler exposes the chat core over HTTP and websockets.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"quickchat/internal/chat/service"
	"quickchat/internal/common"
)

type ChatHandler struct {
	chatService service.ChatService
	log         zerolog.Logger
}

func NewChatHandler(chatService service.ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log.With().Str("component", "chat-http").Logger(),
	}
}

// RegisterRoutes mounts the message API on r, which must already be wrapped
// by the auth middleware.
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/messages/users", h.Sidebar).Methods(http.MethodGet)
	r.HandleFunc("/messages/mark/{id}", h.MarkSeen).Methods(http.MethodPut)
	r.HandleFunc("/messages/send/{id:[0-9]+}", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id:[0-9]+}", h.Conversation).Methods(http.MethodGet)
}

// Sidebar handles GET /messages/users
func (h *ChatHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, h.log, common.ErrUnauthorized)
		return
	}

	sidebar, err := h.chatService.SidebarSummary(r.Context(), viewerID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, envelope{
		"success":        true,
		"users":          sidebar.Users,
		"unseenMessages": sidebar.Unseen,
	})
}

// Conversation handles GET /messages/{id}
func (h *ChatHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, h.log, common.ErrUnauthorized)
		return
	}
	peerID, err := pathUserID(r)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	messages, err := h.chatService.OpenConversation(r.Context(), viewerID, peerID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, envelope{"success": true, "messages": messages})
}

// MarkSeen handles PUT /messages/mark/{id}
func (h *ChatHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, h.log, common.ErrUnauthorized)
		return
	}

	if err := h.chatService.MarkSeen(r.Context(), viewerID, mux.Vars(r)["id"]); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, envelope{"success": true})
}

// SendMessage handles POST /messages/send/{id}
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, h.log, common.ErrUnauthorized)
		return
	}
	receiverID, err := pathUserID(r)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var in service.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, h.log, http.StatusRequestEntityTooLarge, envelope{"success": false, "message": "request body too large"})
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		respondError(w, h.log, fmt.Errorf("%w: invalid request payload: %v", common.ErrValidation, err))
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), senderID, receiverID, in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, envelope{"success": true, "newMessage": msg})
}

// Status handles GET /status
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("server is live"))
}

func pathUserID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", common.ErrValidation, raw)
	}
	return id, nil
}
