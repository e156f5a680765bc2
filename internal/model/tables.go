package model

import "fmt"

const (
	ConversationsTable = "ChatConversations"
	ParticipantsTable  = "ChatParticipants"
	MessagesTable      = "ChatMessages"
	RolesTable         = "UserRoles"
)

const (
	IndexByOwner        = "byOwner"
	IndexByStatus       = "byStatus"
	IndexByConversation = "byConversation"
)

func ParticipantPK(conversationID, identityKey string) string {
	return fmt.Sprintf("%s#%s", conversationID, identityKey)
}

func MessagePK(conversationID, messageID string) string {
	return fmt.Sprintf("%s#%s", conversationID, messageID)
}

// RoleItem mirrors the user_roles table kept by the admin tooling.
type RoleItem struct {
	AuthUID string `dynamodbav:"authUid"`
	Role    string `dynamodbav:"role"`
}
