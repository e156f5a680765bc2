package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"ecolisting-chat-backend/internal/database"
	"ecolisting-chat-backend/internal/model"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound reports whether err is, or wraps, a not-found condition.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Code == ErrorCodeNotFound
}

type EnsureParams struct {
	OwnerUID   string
	VisitorID  string
	Kind       string
	Title      string
	PropertyID string
	Address    string
	MemberUIDs []string
}

type EnsureResult struct {
	Conversation model.ConversationItem
	Created      bool
}

type PostMessageParams struct {
	ConversationID string
	Role           model.MessageRole
	Content        string
	SenderUID      string
	// CreatedAt overrides the service clock, e.g. for messages written
	// earlier and replayed now.
	CreatedAt time.Time
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(db *database.Database) *Service {
	return &Service{
		repo: NewDynamoRepository(db),
		now:  time.Now,
	}
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		now:  now,
	}
}

func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) Get(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "conversation id is required", nil)
	}
	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation, nil
}

// Ensure reuses the newest open conversation owned by OwnerUID or creates
// one. The owner and any extra members are added as participants.
func (s *Service) Ensure(ctx context.Context, params EnsureParams) (EnsureResult, error) {
	owner := strings.TrimSpace(params.OwnerUID)
	if owner == "" {
		return EnsureResult{}, newError(ErrorCodeValidation, "owner is required", nil)
	}

	existing, err := s.repo.LatestOpenConversation(ctx, owner)
	switch {
	case err == nil:
		if err := s.EnsureParticipant(ctx, existing.ConversationID, owner); err != nil {
			return EnsureResult{}, err
		}
		s.addMembers(ctx, existing.ConversationID, params.MemberUIDs)
		return EnsureResult{Conversation: existing}, nil
	case !errors.Is(err, ErrNotFound):
		return EnsureResult{}, newError(ErrorCodeInternal, "failed to lookup conversation", err)
	}

	kind := strings.TrimSpace(params.Kind)
	if kind == "" {
		kind = model.DefaultConversationKind
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = model.DefaultConversationTitle
	}

	nowStr := model.FormatTime(s.now())
	conversationID := uuid.NewString()
	conversation := model.ConversationItem{
		PK:             conversationID,
		ConversationID: conversationID,
		OwnerUID:       owner,
		VisitorID:      strings.TrimSpace(params.VisitorID),
		Kind:           kind,
		Title:          title,
		Status:         model.ConversationStatusOpen,
		PropertyID:     strings.TrimSpace(params.PropertyID),
		Address:        strings.TrimSpace(params.Address),
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}

	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return EnsureResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}
	if err := s.EnsureParticipant(ctx, conversationID, owner); err != nil {
		return EnsureResult{}, err
	}
	s.addMembers(ctx, conversationID, params.MemberUIDs)

	return EnsureResult{Conversation: conversation, Created: true}, nil
}

func (s *Service) addMembers(ctx context.Context, conversationID string, members []string) {
	for _, uid := range members {
		if strings.TrimSpace(uid) == "" {
			continue
		}
		_ = s.EnsureParticipant(ctx, conversationID, uid)
	}
}

// EnsureParticipant is idempotent: an existing membership is not an error.
func (s *Service) EnsureParticipant(ctx context.Context, conversationID, identityKey string) error {
	conversationID = strings.TrimSpace(conversationID)
	identityKey = strings.TrimSpace(identityKey)
	if conversationID == "" || identityKey == "" {
		return newError(ErrorCodeValidation, "conversation and identity are required", nil)
	}

	participant := model.ParticipantItem{
		PK:             model.ParticipantPK(conversationID, identityKey),
		ConversationID: conversationID,
		UserUID:        identityKey,
		JoinedAt:       model.FormatTime(s.now()),
	}
	if err := s.repo.AddParticipant(ctx, participant); err != nil {
		return newError(ErrorCodeInternal, "failed to add participant", err)
	}
	return nil
}

func (s *Service) IsParticipant(ctx context.Context, conversationID, identityKey string) (bool, error) {
	participants, err := s.repo.ListParticipants(ctx, conversationID)
	if err != nil {
		return false, newError(ErrorCodeInternal, "failed to list participants", err)
	}
	for _, p := range participants {
		if p.UserUID == identityKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) PostMessage(ctx context.Context, params PostMessageParams) (model.MessageItem, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "message content is required", nil)
	}
	if !params.Role.Valid() {
		return model.MessageItem{}, newError(ErrorCodeValidation, "invalid message role", nil)
	}
	conversationID := strings.TrimSpace(params.ConversationID)
	if conversationID == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "conversation id is required", nil)
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	messageID, err := uuid.NewV7()
	if err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to generate message id", err)
	}

	message := model.MessageItem{
		PK:             model.MessagePK(conversationID, messageID.String()),
		ConversationID: conversationID,
		MessageID:      messageID.String(),
		Role:           params.Role,
		Content:        content,
		SenderUID:      strings.TrimSpace(params.SenderUID),
		CreatedAt:      model.FormatTime(createdAt),
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to store message", err)
	}
	return message, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	messages, err := s.repo.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

// Touch records last-message metadata used by inbox views.
func (s *Service) Touch(ctx context.Context, message model.MessageItem) error {
	at := message.CreatedAt
	if at == "" {
		at = model.FormatTime(s.now())
	}
	err := s.repo.TouchConversation(ctx, message.ConversationID, Touch{
		At:      at,
		Role:    message.Role,
		Preview: model.Truncate(message.Content, model.PreviewLength),
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return newError(ErrorCodeInternal, "failed to touch conversation", err)
	}
	return nil
}

func (s *Service) Inbox(ctx context.Context, ownerUID string, limit int) ([]model.ConversationItem, error) {
	conversations, err := s.repo.ListConversationsByOwner(ctx, ownerUID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}
	return conversations, nil
}

func (s *Service) OpenInbox(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	conversations, err := s.repo.ListOpenConversations(ctx, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}
	return conversations, nil
}

// Role returns the raw role assignment. Callers decide on fallbacks.
func (s *Service) Role(ctx context.Context, uid string) (model.UserRole, error) {
	return s.repo.GetRole(ctx, uid)
}

func (s *Service) LatestMessageByRole(ctx context.Context, conversationID string, role model.MessageRole) (model.MessageItem, error) {
	return s.repo.LatestMessageByRole(ctx, conversationID, role)
}
