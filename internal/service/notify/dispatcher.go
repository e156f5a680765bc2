package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ecolisting-chat-backend/internal/functions"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/identity"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// GuestHistoryEntries and GuestHistoryChars bound what a guest reply
	// is generated from.
	GuestHistoryEntries = 30
	GuestHistoryChars   = 4000

	defaultNotifyTimeout = 10 * time.Second
)

type PolicyChecker interface {
	ShouldAutoReply(ctx context.Context, conversationID string, lookback time.Duration) (bool, error)
}

type Functions interface {
	PolicyChecker
	TriggerAutoReply(ctx context.Context, conversationID, bearer string) error
	GuestReply(ctx context.Context, history []functions.HistoryEntry) (string, error)
	StaffNotify(ctx context.Context, payload functions.NotifyPayload) (functions.NotifyResult, error)
}

type Toucher interface {
	Touch(ctx context.Context, message model.MessageItem) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Runner executes detached tasks. Errors returned by a task are logged by
// the runner and never reach the sender.
type Runner interface {
	Detach(name string, fn func(ctx context.Context) error)
}

type Config struct {
	Lookback           time.Duration
	PolicyTimeout      time.Duration
	AutoReplyTimeout   time.Duration
	NotifyTimeout      time.Duration
	AutoReplyPerMinute int
}

// Alert is broadcast on the staff alerts channel.
type Alert struct {
	Event          functions.Event `json:"event"`
	ConversationID string          `json:"conversation_id,omitempty"`
	VisitorID      string          `json:"visitor_id,omitempty"`
	FromUID        string          `json:"from_uid,omitempty"`
	PropertyID     string          `json:"property_id,omitempty"`
	Address        string          `json:"address,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	Excerpt        string          `json:"excerpt"`
	At             time.Time       `json:"at"`
}

// Outbound describes a message that has just been appended.
type Outbound struct {
	Sender identity.Identity
	// Message is the persisted row; zero in guest mode.
	Message    model.MessageItem
	Content    string
	PropertyID string
	Address    string
	// GuestHistory is the buffer including this message; guest mode only.
	GuestHistory []functions.HistoryEntry
}

func (o Outbound) conversationID() string {
	return o.Message.ConversationID
}

type Hooks struct {
	OnTyping func(active bool)
	// OnPromote is offered a conversation the notify function opened for a
	// guest. It reports whether the session is now bound to it.
	OnPromote    func(conversationID string) bool
	OnGuestReply func(reply string)
}

func (h Hooks) typing(active bool) {
	if h.OnTyping != nil {
		h.OnTyping(active)
	}
}

type Dispatcher struct {
	fns       Functions
	touch     Toucher
	publisher Publisher
	runner    Runner
	cfg       Config
	now       func() time.Time
	log       *logger.Logger

	limiterMu sync.Mutex
	limiters  *cache.Cache
	announced *cache.Cache
}

func NewDispatcher(fns Functions, touch Toucher, publisher Publisher, runner Runner, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 120 * time.Second
	}
	if cfg.PolicyTimeout <= 0 {
		cfg.PolicyTimeout = 3 * time.Second
	}
	if cfg.AutoReplyTimeout <= 0 {
		cfg.AutoReplyTimeout = 20 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &Dispatcher{
		fns:       fns,
		touch:     touch,
		publisher: publisher,
		runner:    runner,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.OrNop(log).With("component", "notify"),
		limiters:  cache.New(10*time.Minute, 10*time.Minute),
		announced: cache.New(time.Hour, 10*time.Minute),
	}
}

// Dispatch schedules the side effects of an appended message and returns
// immediately.
func (d *Dispatcher) Dispatch(out Outbound, hooks Hooks) {
	if out.Sender.IsStaff() {
		d.staffFollowup(out)
		return
	}

	if out.Sender.IsGuest() || out.conversationID() == "" {
		d.runner.Detach("guest_followup", func(ctx context.Context) error {
			return d.guestFollowup(ctx, out, hooks)
		})
		return
	}

	customer := out.Sender.MessageRole() == model.RoleCustomer

	if customer {
		d.runner.Detach("staff_alert", func(ctx context.Context) error {
			_, err := d.staffAlert(ctx, out)
			return err
		})
	}

	d.runner.Detach("touch", func(ctx context.Context) error {
		err := d.touch.Touch(ctx, out.Message)
		observe("touch", err)
		return err
	})

	if !customer {
		tasks.WithLabelValues("auto_reply", outcomeSkipped).Inc()
		return
	}

	conversationID := out.conversationID()
	bearer := out.Sender.Token
	d.runner.Detach("auto_reply", func(ctx context.Context) error {
		return d.autoReply(ctx, conversationID, bearer, hooks)
	})
}

// staffFollowup only touches the conversation. Staff messages never reach
// the automated responder, whatever mode the sender's session is in.
func (d *Dispatcher) staffFollowup(out Outbound) {
	tasks.WithLabelValues("auto_reply", outcomeSkipped).Inc()
	if out.conversationID() == "" {
		return
	}
	d.runner.Detach("touch", func(ctx context.Context) error {
		err := d.touch.Touch(ctx, out.Message)
		observe("touch", err)
		return err
	})
}

// AutoReply runs the policy check and trigger for a conversation, e.g. one a
// guest was just promoted into.
func (d *Dispatcher) AutoReply(conversationID, bearer string, hooks Hooks) {
	d.runner.Detach("auto_reply", func(ctx context.Context) error {
		return d.autoReply(ctx, conversationID, bearer, hooks)
	})
}

// AutomatedReplySent alerts staff once per automated message id.
func (d *Dispatcher) AutomatedReplySent(msg model.MessageItem, visitorID string) {
	if msg.Role != model.RoleAutomated || msg.MessageID == "" {
		return
	}
	if err := d.announced.Add(msg.MessageID, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}
	d.runner.Detach("automated_reply_alert", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
		defer cancel()
		excerpt := model.Truncate(msg.Content, model.ExcerptLength)
		_, err := d.fns.StaffNotify(ctx, functions.NotifyPayload{
			Event:          functions.EventAutomatedReplySent,
			Excerpt:        excerpt,
			ConversationID: msg.ConversationID,
			VisitorID:      visitorID,
			MessageID:      msg.MessageID,
		})
		observe("automated_reply_alert", err)
		return err
	})
}

// staffAlert calls the notify function and broadcasts on the staff channel
// concurrently. The notify result is returned when that call succeeded.
func (d *Dispatcher) staffAlert(ctx context.Context, out Outbound) (functions.NotifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()

	excerpt := model.Truncate(out.Content, model.ExcerptLength)
	source := "chat_panel"
	if out.Sender.IsGuest() {
		source = "chat_panel_guest"
	}
	payload := functions.NotifyPayload{
		Event:          functions.EventCustomerMessage,
		Text:           out.Content,
		Excerpt:        excerpt,
		ConversationID: out.conversationID(),
		FromUID:        out.Sender.UID,
		VisitorID:      out.Sender.VisitorID,
		PropertyID:     out.PropertyID,
		Address:        out.Address,
		MessageID:      out.Message.MessageID,
		Source:         source,
	}
	alert := Alert{
		Event:          functions.EventCustomerMessage,
		ConversationID: payload.ConversationID,
		VisitorID:      payload.VisitorID,
		FromUID:        payload.FromUID,
		PropertyID:     payload.PropertyID,
		Address:        payload.Address,
		MessageID:      payload.MessageID,
		Excerpt:        excerpt,
		At:             d.now().UTC(),
	}

	var result functions.NotifyResult
	var notifyErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, notifyErr = d.fns.StaffNotify(gctx, payload)
		observe("staff_notify", notifyErr)
		return nil
	})
	g.Go(func() error {
		raw, err := json.Marshal(alert)
		if err == nil {
			err = d.publisher.Publish(gctx, realtime.StaffAlertsChannel, raw)
		}
		observe("staff_broadcast", err)
		if err != nil {
			d.log.Warn("staff broadcast failed", "conversation", alert.ConversationID, "error", err)
		}
		return nil
	})
	_ = g.Wait()

	if notifyErr != nil {
		return functions.NotifyResult{}, fmt.Errorf("staff notify: %w", notifyErr)
	}
	return result, nil
}

func (d *Dispatcher) autoReply(ctx context.Context, conversationID, bearer string, hooks Hooks) error {
	policyCtx, cancel := context.WithTimeout(ctx, d.cfg.PolicyTimeout)
	ok, err := d.fns.ShouldAutoReply(policyCtx, conversationID, d.cfg.Lookback)
	cancel()
	if err != nil {
		observe("policy_check", err)
		d.log.Warn("policy check failed, not triggering auto reply", "conversation", conversationID, "error", err)
		return nil
	}
	if !ok {
		tasks.WithLabelValues("auto_reply", outcomeSuppressed).Inc()
		return nil
	}
	if !d.limiter(conversationID).Allow() {
		tasks.WithLabelValues("auto_reply", outcomeSuppressed).Inc()
		d.log.Info("auto reply throttled", "conversation", conversationID)
		return nil
	}

	hooks.typing(true)
	defer hooks.typing(false)

	triggerCtx, cancel := context.WithTimeout(ctx, d.cfg.AutoReplyTimeout)
	defer cancel()
	err = d.fns.TriggerAutoReply(triggerCtx, conversationID, bearer)
	observe("auto_reply", err)
	return err
}

func (d *Dispatcher) guestFollowup(ctx context.Context, out Outbound, hooks Hooks) error {
	result, err := d.staffAlert(ctx, out)
	if err != nil {
		d.log.Warn("guest staff notify failed", "visitor", out.Sender.VisitorID, "error", err)
	}

	if result.ConversationID != "" && hooks.OnPromote != nil && hooks.OnPromote(result.ConversationID) {
		return d.autoReply(ctx, result.ConversationID, out.Sender.Token, hooks)
	}

	if hooks.OnGuestReply == nil {
		return nil
	}

	hooks.typing(true)
	defer hooks.typing(false)

	replyCtx, cancel := context.WithTimeout(ctx, d.cfg.AutoReplyTimeout)
	defer cancel()
	reply, err := d.fns.GuestReply(replyCtx, TrimHistory(out.GuestHistory))
	observe("guest_reply", err)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	hooks.OnGuestReply(reply)
	return nil
}

func (d *Dispatcher) limiter(conversationID string) *rate.Limiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	if l, ok := d.limiters.Get(conversationID); ok {
		return l.(*rate.Limiter)
	}
	perMinute := d.cfg.AutoReplyPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	d.limiters.SetDefault(conversationID, l)
	return l
}

// TrimHistory keeps the newest entries and caps each one's length.
func TrimHistory(history []functions.HistoryEntry) []functions.HistoryEntry {
	if len(history) > GuestHistoryEntries {
		history = history[len(history)-GuestHistoryEntries:]
	}
	out := make([]functions.HistoryEntry, 0, len(history))
	for _, h := range history {
		out = append(out, functions.HistoryEntry{
			Role:    h.Role,
			Content: model.Truncate(h.Content, GuestHistoryChars),
		})
	}
	return out
}
