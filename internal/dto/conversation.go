package dto

type IdentityResponse struct {
	Kind      string `json:"kind"`
	VisitorID string `json:"visitorId"`
	UID       string `json:"uid,omitempty"`
	Role      string `json:"role,omitempty"`
}

type ConversationMetadata struct {
	ConversationID     string `json:"conversationId"`
	OwnerUID           string `json:"ownerUid,omitempty"`
	VisitorID          string `json:"visitorId,omitempty"`
	Kind               string `json:"kind"`
	Title              string `json:"title,omitempty"`
	AgentUID           string `json:"agentUid,omitempty"`
	Status             string `json:"status"`
	PropertyID         string `json:"propertyId,omitempty"`
	Address            string `json:"address,omitempty"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
	LastMessageAt      string `json:"lastMessageAt,omitempty"`
	LastMessageRole    string `json:"lastMessageRole,omitempty"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
}

type MessageResponse struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	Role           string `json:"role"`
	Display        string `json:"display"`
	Label          string `json:"label"`
	SenderID       string `json:"senderId,omitempty"`
	Body           string `json:"body"`
	CreatedAt      string `json:"createdAt"`
	Local          bool   `json:"local,omitempty"`
}

type OpenChatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
}

type OpenChatResponse struct {
	Identity       IdentityResponse  `json:"identity"`
	State          string            `json:"state"`
	ConversationID string            `json:"conversationId,omitempty"`
	ShareURL       string            `json:"shareUrl,omitempty"`
	Created        bool              `json:"created"`
	Degraded       bool              `json:"degraded,omitempty"`
	Messages       []MessageResponse `json:"messages"`
}

type PostMessageRequest struct {
	Body       string `json:"body"`
	PropertyID string `json:"propertyId,omitempty"`
	Address    string `json:"address,omitempty"`
}

type PostMessageResponse struct {
	Message MessageResponse `json:"message"`
}

type ListConversationsResponse struct {
	Conversations []ConversationMetadata `json:"conversations"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ShouldReplyRequest is the policy RPC body.
type ShouldReplyRequest struct {
	ConversationID  string `json:"_conversation_id"`
	LookbackSeconds int    `json:"_lookback_seconds"`
}
