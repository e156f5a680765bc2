package endpoints

import (
	"net/http"
	"strings"

	"ecolisting-chat-backend/internal/api/middleware"
	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/dto"
)

type ChatEndpoints interface {
	Identity(http.ResponseWriter, *http.Request) error
	Open(http.ResponseWriter, *http.Request) error
	Conversations(http.ResponseWriter, *http.Request) error
	ConversationMessages(http.ResponseWriter, *http.Request) error
	GuestMessages(http.ResponseWriter, *http.Request) error
	SignOut(http.ResponseWriter, *http.Request) error
}

type ChatPaths struct {
	ConversationPrefix string
}

type chatEndpoints struct {
	service *chat.Service
	paths   ChatPaths
}

func NewChatEndpoints(service *chat.Service, paths ChatPaths) ChatEndpoints {
	return &chatEndpoints{service: service, paths: paths}
}

func (h *chatEndpoints) Identity(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleIdentity,
	})
}

func (h *chatEndpoints) Open(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleOpen,
	})
}

func (h *chatEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleInbox,
	})
}

func (h *chatEndpoints) ConversationMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListMessages,
		http.MethodPost: h.handlePostMessage,
	})
}

func (h *chatEndpoints) GuestMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListGuestMessages,
		http.MethodPost: h.handlePostGuestMessage,
	})
}

func (h *chatEndpoints) SignOut(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleSignOut,
	})
}

func (h *chatEndpoints) handleIdentity(w http.ResponseWriter, r *http.Request) error {
	id := h.service.Identity(r.Context(), middleware.Client(r))
	return WriteJSON(w, http.StatusOK, toIdentityResponse(id))
}

func (h *chatEndpoints) handleOpen(w http.ResponseWriter, r *http.Request) error {
	var req dto.OpenChatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req, "open chat request"); err != nil {
			return err
		}
	}
	if req.ConversationID == "" {
		req.ConversationID = r.URL.Query().Get("conversation_id")
	}

	result := h.service.Open(r.Context(), middleware.Client(r), strings.TrimSpace(req.ConversationID))
	return WriteJSON(w, http.StatusOK, dto.OpenChatResponse{
		Identity:       toIdentityResponse(result.Identity),
		State:          string(result.Binding.State),
		ConversationID: result.Binding.ConversationID,
		ShareURL:       result.Binding.ShareURL,
		Created:        result.Binding.Created,
		Degraded:       result.Binding.Degraded,
		Messages:       toMessageList(result.Messages),
	})
}

func (h *chatEndpoints) handleInbox(w http.ResponseWriter, r *http.Request) error {
	items, err := h.service.Inbox(r.Context(), middleware.Client(r), limitParam(r))
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListConversationsResponse{Conversations: toConversationList(items)})
}

func (h *chatEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	conversationID, err := messagesPathID(r.URL.Path, h.paths.ConversationPrefix)
	if err != nil {
		return err
	}
	msgs, err := h.service.History(r.Context(), middleware.Client(r), conversationID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: toMessageList(msgs)})
}

func (h *chatEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request) error {
	conversationID, err := messagesPathID(r.URL.Path, h.paths.ConversationPrefix)
	if err != nil {
		return err
	}
	return h.send(w, r, conversationID)
}

func (h *chatEndpoints) handleListGuestMessages(w http.ResponseWriter, r *http.Request) error {
	msgs, err := h.service.History(r.Context(), middleware.Client(r), "")
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: toMessageList(msgs)})
}

func (h *chatEndpoints) handlePostGuestMessage(w http.ResponseWriter, r *http.Request) error {
	return h.send(w, r, "")
}

func (h *chatEndpoints) send(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req, "post message request"); err != nil {
		return err
	}

	result, err := h.service.Send(r.Context(), middleware.Client(r), chat.SendParams{
		ConversationID: conversationID,
		Content:        req.Body,
		PropertyID:     strings.TrimSpace(req.PropertyID),
		Address:        strings.TrimSpace(req.Address),
	})
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.PostMessageResponse{Message: toMessageResponse(result.Message)})
}

func (h *chatEndpoints) handleSignOut(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.SignOut(r.Context(), middleware.Client(r)); err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Signed out"})
}
