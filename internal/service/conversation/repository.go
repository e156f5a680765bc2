package conversation

import (
	"context"
	"errors"
	"sort"
	"time"

	"ecolisting-chat-backend/internal/database"
	"ecolisting-chat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("conversation repository: not found")

// Touch is the last-message metadata written after a send.
type Touch struct {
	At      string
	Role    model.MessageRole
	Preview string
}

type Repository interface {
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	LatestOpenConversation(ctx context.Context, ownerUID string) (model.ConversationItem, error)
	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	AddParticipant(ctx context.Context, participant model.ParticipantItem) error
	ListParticipants(ctx context.Context, conversationID string) ([]model.ParticipantItem, error)
	CreateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error)
	TouchConversation(ctx context.Context, conversationID string, touch Touch) error
	ListConversationsByOwner(ctx context.Context, ownerUID string, limit int) ([]model.ConversationItem, error)
	ListOpenConversations(ctx context.Context, limit int) ([]model.ConversationItem, error)
	GetRole(ctx context.Context, uid string) (model.UserRole, error)
	LatestMessageByRole(ctx context.Context, conversationID string, role model.MessageRole) (model.MessageItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.GetItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"pk": database.AttrString(conversationID),
		},
		&conversation,
	)
	if err != nil {
		if errors.Is(err, database.ErrItemNotFound) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) LatestOpenConversation(ctx context.Context, ownerUID string) (model.ConversationItem, error) {
	conversations, err := r.queryConversations(ctx, model.IndexByOwner, "ownerUid", ownerUID)
	if err != nil {
		return model.ConversationItem{}, err
	}
	latest, ok := latestOpen(conversations)
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return latest, nil
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	return r.db.Client.PutItem(ctx, model.ConversationsTable, conversation)
}

// AddParticipant treats an existing membership row as success.
func (r *DynamoRepository) AddParticipant(ctx context.Context, participant model.ParticipantItem) error {
	err := r.db.Client.PutItemIfAbsent(ctx, model.ParticipantsTable, "pk", participant)
	if errors.Is(err, database.ErrConditionFailed) {
		return nil
	}
	return err
}

func (r *DynamoRepository) ListParticipants(ctx context.Context, conversationID string) ([]model.ParticipantItem, error) {
	items, err := r.queryByConversation(ctx, model.ParticipantsTable, conversationID)
	if err != nil {
		return nil, err
	}
	return database.UnmarshalItems[model.ParticipantItem](items)
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	items, err := r.queryByConversation(ctx, model.MessagesTable, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := database.UnmarshalItems[model.MessageItem](items)
	if err != nil {
		return nil, err
	}
	return latestMessages(messages, limit), nil
}

func (r *DynamoRepository) TouchConversation(ctx context.Context, conversationID string, touch Touch) error {
	err := r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"pk": database.AttrString(conversationID),
		},
		"SET #updatedAt = :at, #lastMessageAt = :at, #lastMessageRole = :role, #lastMessagePreview = :preview",
		map[string]types.AttributeValue{
			":at":      database.AttrString(touch.At),
			":role":    database.AttrString(string(touch.Role)),
			":preview": database.AttrString(touch.Preview),
		},
		map[string]string{
			"#updatedAt":          "updatedAt",
			"#lastMessageAt":      "lastMessageAt",
			"#lastMessageRole":    "lastMessageRole",
			"#lastMessagePreview": "lastMessagePreview",
		},
		nil,
	)
	if errors.Is(err, database.ErrItemNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *DynamoRepository) ListConversationsByOwner(ctx context.Context, ownerUID string, limit int) ([]model.ConversationItem, error) {
	conversations, err := r.queryConversations(ctx, model.IndexByOwner, "ownerUid", ownerUID)
	if err != nil {
		return nil, err
	}
	return byLastActivity(conversations, limit), nil
}

func (r *DynamoRepository) ListOpenConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	conversations, err := r.queryConversations(ctx, model.IndexByStatus, "status", string(model.ConversationStatusOpen))
	if err != nil {
		return nil, err
	}
	return byLastActivity(conversations, limit), nil
}

func (r *DynamoRepository) GetRole(ctx context.Context, uid string) (model.UserRole, error) {
	var role model.RoleItem
	err := r.db.Client.GetItem(
		ctx,
		model.RolesTable,
		map[string]types.AttributeValue{
			"authUid": database.AttrString(uid),
		},
		&role,
	)
	if err != nil {
		if errors.Is(err, database.ErrItemNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return model.ParseUserRole(role.Role), nil
}

func (r *DynamoRepository) LatestMessageByRole(ctx context.Context, conversationID string, role model.MessageRole) (model.MessageItem, error) {
	items, err := r.queryByConversation(ctx, model.MessagesTable, conversationID)
	if err != nil {
		return model.MessageItem{}, err
	}
	messages, err := database.UnmarshalItems[model.MessageItem](items)
	if err != nil {
		return model.MessageItem{}, err
	}
	latest, ok := latestWithRole(messages, role)
	if !ok {
		return model.MessageItem{}, ErrNotFound
	}
	return latest, nil
}

func (r *DynamoRepository) queryConversations(ctx context.Context, index, attr, value string) ([]model.ConversationItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.ConversationsTable,
		aws.String(index),
		"#attr = :value",
		map[string]types.AttributeValue{
			":value": database.AttrString(value),
		},
		map[string]string{"#attr": attr},
	)
	if err != nil && database.IsIndexNotFound(err) {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.ConversationsTable,
			"#attr = :value",
			map[string]types.AttributeValue{
				":value": database.AttrString(value),
			},
			map[string]string{"#attr": attr},
		)
	}
	if err != nil {
		return nil, err
	}
	return database.UnmarshalItems[model.ConversationItem](items)
}

func (r *DynamoRepository) queryByConversation(ctx context.Context, table, conversationID string) ([]map[string]types.AttributeValue, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		table,
		aws.String(model.IndexByConversation),
		"conversationId = :conversationId",
		map[string]types.AttributeValue{
			":conversationId": database.AttrString(conversationID),
		},
		nil,
	)
	if err != nil && database.IsIndexNotFound(err) {
		items, err = r.db.Client.ScanItems(
			ctx,
			table,
			"conversationId = :conversationId",
			map[string]types.AttributeValue{
				":conversationId": database.AttrString(conversationID),
			},
			nil,
		)
	}
	return items, err
}

// latestOpen picks the open conversation with the newest creation time;
// equal times go to the greater id.
func latestOpen(conversations []model.ConversationItem) (model.ConversationItem, bool) {
	var latest model.ConversationItem
	found := false
	for _, c := range conversations {
		if c.Status != model.ConversationStatusOpen {
			continue
		}
		if !found || newerConversation(c, latest) {
			latest = c
			found = true
		}
	}
	return latest, found
}

func newerConversation(a, b model.ConversationItem) bool {
	ta, tb := model.ParseTime(a.CreatedAt), model.ParseTime(b.CreatedAt)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ConversationID > b.ConversationID
}

func byLastActivity(conversations []model.ConversationItem, limit int) []model.ConversationItem {
	sort.SliceStable(conversations, func(i, j int) bool {
		return activityTime(conversations[i]).After(activityTime(conversations[j]))
	})
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations
}

func activityTime(c model.ConversationItem) time.Time {
	if t := model.ParseTime(c.LastMessageAt); !t.IsZero() {
		return t
	}
	return model.ParseTime(c.CreatedAt)
}

// SortMessages orders by creation time, then id.
func SortMessages(messages []model.MessageItem) {
	sort.SliceStable(messages, func(i, j int) bool {
		ti, tj := messages[i].CreatedTime(), messages[j].CreatedTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return messages[i].MessageID < messages[j].MessageID
	})
}

// latestMessages keeps the newest limit messages in ascending order.
func latestMessages(messages []model.MessageItem, limit int) []model.MessageItem {
	SortMessages(messages)
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

func latestWithRole(messages []model.MessageItem, role model.MessageRole) (model.MessageItem, bool) {
	SortMessages(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return model.MessageItem{}, false
}
