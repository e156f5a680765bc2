package model

import (
	"strings"
	"time"
)

// TimeFormat is used for every persisted timestamp. Sorting must parse, not
// compare strings, since RFC3339Nano trims trailing zeros.
const TimeFormat = time.RFC3339Nano

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

const (
	DefaultConversationKind  = "prospect"
	DefaultConversationTitle = "My Home Search"
)

type ConversationItem struct {
	PK                 string             `dynamodbav:"pk"`
	ConversationID     string             `dynamodbav:"conversationId"`
	OwnerUID           string             `dynamodbav:"ownerUid,omitempty"`
	VisitorID          string             `dynamodbav:"visitorId,omitempty"`
	Kind               string             `dynamodbav:"kind"`
	Title              string             `dynamodbav:"title,omitempty"`
	AgentUID           string             `dynamodbav:"agentUid,omitempty"`
	Status             ConversationStatus `dynamodbav:"status"`
	PropertyID         string             `dynamodbav:"propertyId,omitempty"`
	Address            string             `dynamodbav:"address,omitempty"`
	CreatedAt          string             `dynamodbav:"createdAt"`
	UpdatedAt          string             `dynamodbav:"updatedAt"`
	LastMessageAt      string             `dynamodbav:"lastMessageAt,omitempty"`
	LastMessageRole    MessageRole        `dynamodbav:"lastMessageRole,omitempty"`
	LastMessagePreview string             `dynamodbav:"lastMessagePreview,omitempty"`
}

type ParticipantItem struct {
	PK             string `dynamodbav:"pk"`
	ConversationID string `dynamodbav:"conversationId"`
	UserUID        string `dynamodbav:"userUid"`
	JoinedAt       string `dynamodbav:"joinedAt"`
}

type MessageItem struct {
	PK             string      `dynamodbav:"pk"`
	ConversationID string      `dynamodbav:"conversationId"`
	MessageID      string      `dynamodbav:"messageId"`
	Role           MessageRole `dynamodbav:"role"`
	Content        string      `dynamodbav:"content"`
	SenderUID      string      `dynamodbav:"senderUid,omitempty"`
	CreatedAt      string      `dynamodbav:"createdAt"`
}

// CreatedTime returns the zero time for unparsable timestamps.
func (m MessageItem) CreatedTime() time.Time {
	return ParseTime(m.CreatedAt)
}

func ParseTime(ts string) time.Time {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
