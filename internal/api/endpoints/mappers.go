package endpoints

import (
	"time"

	"ecolisting-chat-backend/internal/dto"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/feed"
	"ecolisting-chat-backend/internal/service/identity"
)

func toConversationMetadata(item model.ConversationItem) dto.ConversationMetadata {
	return dto.ConversationMetadata{
		ConversationID:     item.ConversationID,
		OwnerUID:           item.OwnerUID,
		VisitorID:          item.VisitorID,
		Kind:               item.Kind,
		Title:              item.Title,
		AgentUID:           item.AgentUID,
		Status:             string(item.Status),
		PropertyID:         item.PropertyID,
		Address:            item.Address,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
		LastMessageAt:      item.LastMessageAt,
		LastMessageRole:    string(item.LastMessageRole),
		LastMessagePreview: item.LastMessagePreview,
	}
}

func toConversationList(items []model.ConversationItem) []dto.ConversationMetadata {
	out := make([]dto.ConversationMetadata, 0, len(items))
	for _, item := range items {
		out = append(out, toConversationMetadata(item))
	}
	return out
}

func toMessageResponse(m feed.Message) dto.MessageResponse {
	return dto.MessageResponse{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Display:        string(model.Present(m.Role)),
		Label:          model.DisplayLabel(m.Role),
		SenderID:       m.SenderUID,
		Body:           m.Content,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		Local:          m.Local,
	}
}

func toMessageList(msgs []feed.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toIdentityResponse(id identity.Identity) dto.IdentityResponse {
	resp := dto.IdentityResponse{Kind: string(id.Kind), VisitorID: id.VisitorID}
	if !id.IsGuest() {
		resp.UID = id.UID
		resp.Role = string(id.Role)
	}
	return resp
}
