package policy

import (
	"context"
	"strings"
	"time"

	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/conversation"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultLookback = 120 * time.Second

const (
	DecisionReply       = "reply"
	DecisionMissing     = "missing"
	DecisionClosed      = "closed"
	DecisionRecentStaff = "recent_staff"
)

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ecolisting_autoreply_decisions_total",
		Help: "Automated reply policy decisions by outcome.",
	},
	[]string{"decision"},
)

func init() {
	prometheus.MustRegister(decisions)
}

type Decider struct {
	conversations *conversation.Service
	now           func() time.Time
	log           *logger.Logger
}

func New(conversations *conversation.Service, now func() time.Time, log *logger.Logger) *Decider {
	if now == nil {
		now = time.Now
	}
	return &Decider{
		conversations: conversations,
		now:           now,
		log:           logger.OrNop(log).With("component", "policy"),
	}
}

// Decide answers whether the automated responder may reply. Any staff
// message inside the lookback window suppresses it, whoever sent it.
func (d *Decider) Decide(ctx context.Context, conversationID string, lookback time.Duration) (bool, error) {
	decision, err := d.decide(ctx, strings.TrimSpace(conversationID), lookback)
	if err != nil {
		return false, err
	}
	decisions.WithLabelValues(decision).Inc()
	d.log.Debug("auto reply decision", "conversation", conversationID, "decision", decision)
	return decision == DecisionReply, nil
}

func (d *Decider) decide(ctx context.Context, conversationID string, lookback time.Duration) (string, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	c, err := d.conversations.Get(ctx, conversationID)
	if err != nil {
		if conversation.IsNotFound(err) {
			return DecisionMissing, nil
		}
		return "", err
	}
	if c.Status != model.ConversationStatusOpen {
		return DecisionClosed, nil
	}

	last, err := d.conversations.LatestMessageByRole(ctx, conversationID, model.RoleStaff)
	if err != nil {
		if conversation.IsNotFound(err) {
			return DecisionReply, nil
		}
		return "", err
	}

	cutoff := d.now().Add(-lookback)
	if !last.CreatedTime().Before(cutoff) {
		return DecisionRecentStaff, nil
	}
	return DecisionReply, nil
}
