package endpoints

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"ecolisting-chat-backend/internal/api/middleware"
	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/dto"
	conversationservice "ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/policy"
)

// ConversationEndpoints serve the staff console.
type ConversationEndpoints interface {
	Conversations(http.ResponseWriter, *http.Request) error
	ConversationMessages(http.ResponseWriter, *http.Request) error
	ShouldReply(http.ResponseWriter, *http.Request) error
}

type ConversationPaths struct {
	ConversationPrefix string
}

type conversationEndpoints struct {
	chat          *chat.Service
	conversations *conversationservice.Service
	policy        *policy.Decider
	paths         ConversationPaths
}

func NewConversationEndpoints(chatService *chat.Service, conversations *conversationservice.Service, decider *policy.Decider, paths ConversationPaths) ConversationEndpoints {
	return &conversationEndpoints{
		chat:          chatService,
		conversations: conversations,
		policy:        decider,
		paths:         paths,
	}
}

func (h *conversationEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListConversations,
	})
}

func (h *conversationEndpoints) ConversationMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListMessages,
		http.MethodPost: h.handlePostStaffMessage,
	})
}

func (h *conversationEndpoints) ShouldReply(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleShouldReply,
	})
}

func (h *conversationEndpoints) handleListConversations(w http.ResponseWriter, r *http.Request) error {
	items, err := h.conversations.OpenInbox(r.Context(), limitParam(r))
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListConversationsResponse{Conversations: toConversationList(items)})
}

func (h *conversationEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	conversationID, err := messagesPathID(r.URL.Path, h.paths.ConversationPrefix)
	if err != nil {
		return err
	}
	msgs, err := h.chat.History(r.Context(), middleware.Client(r), conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: toMessageList(msgs)})
}

func (h *conversationEndpoints) handlePostStaffMessage(w http.ResponseWriter, r *http.Request) error {
	conversationID, err := messagesPathID(r.URL.Path, h.paths.ConversationPrefix)
	if err != nil {
		return err
	}

	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req, "staff message request"); err != nil {
		return err
	}

	result, err := h.chat.Send(r.Context(), middleware.Client(r), chat.SendParams{
		ConversationID: conversationID,
		Content:        req.Body,
	})
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.PostMessageResponse{Message: toMessageResponse(result.Message)})
}

func (h *conversationEndpoints) handleShouldReply(w http.ResponseWriter, r *http.Request) error {
	var req dto.ShouldReplyRequest
	if err := decodeJSON(r, &req, "should reply request"); err != nil {
		return err
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "_conversation_id is required",
			ErrorLog:   fmt.Errorf("should reply request without conversation id"),
		}
	}

	lookback := time.Duration(req.LookbackSeconds) * time.Second
	if lookback <= 0 {
		lookback = policy.DefaultLookback
	}

	ok, err := h.policy.Decide(r.Context(), req.ConversationID, lookback)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, ok)
}
