package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/binder"
	"ecolisting-chat-backend/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ProfileQueryParam names the client storage profile on connect.
const ProfileQueryParam = "profile"

type Handler struct {
	hub      *Hub
	broker   *realtime.Broker
	chat     *chat.Service
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu   sync.Mutex
	subs map[string]*realtime.Subscription
}

func NewHandler(h *Hub, broker *realtime.Broker, chatService *chat.Service, log *logger.Logger) *Handler {
	return &Handler{
		hub:    h,
		broker: broker,
		chat:   chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:  logger.OrNop(log).With("component", "ws"),
		subs: make(map[string]*realtime.Subscription),
	}
}

// CreateRoom makes sure roomID exists and is fed from the realtime channel
// of the same name.
func (h *Handler) CreateRoom(ctx context.Context, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[roomID]; ok {
		return nil
	}

	sub, err := h.broker.Subscribe(ctx, roomID, func(payload []byte) {
		h.hub.Publish(roomID, payload)
	})
	if err != nil {
		return err
	}
	h.hub.EnsureRoom(roomID)
	h.subs[roomID] = sub
	h.log.Info("room subscribed", "room", roomID)
	return nil
}

// Close cancels every room subscription.
func (h *Handler) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*realtime.Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func clientFromRequest(r *http.Request) chat.Client {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = utils.BearerToken(r)
	}
	return chat.Client{Token: token, Profile: strings.TrimSpace(r.URL.Query().Get(ProfileQueryParam))}
}

// Chat upgrades to a live chat session. The session opens right away with
// the conversation named in the query, if any.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	client := clientFromRequest(r)
	candidate := r.URL.Query().Get(binder.ConversationQueryParam)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", "error", err)
		return
	}

	session := h.chat.NewSession(client)
	cl := newClient(conn, uuid.NewString(), "", h.log)
	ctx, cancel := context.WithCancel(context.Background())
	incSessions()

	go cl.keepAlive()
	go cl.writeMessage()
	go h.forwardEvents(cl, session)
	go func() {
		h.open(ctx, cl, session, candidate)
		cl.readMessage(func(frame []byte) {
			h.handleFrame(ctx, cl, session, frame)
		}, func() {
			cancel()
			session.Close()
			decSessions()
		})
	}()
}

func (h *Handler) forwardEvents(cl *WSClient, session *chat.Session) {
	events := session.Events()
	for {
		select {
		case <-cl.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("encode event failed", "type", ev.Type, "error", err)
				continue
			}
			if !cl.send(payload) {
				return
			}
		}
	}
}

func (h *Handler) open(ctx context.Context, cl *WSClient, session *chat.Session, candidate string) {
	if _, err := session.Open(ctx, candidate); err != nil && !errors.Is(err, chat.ErrSuperseded) {
		h.sendError(cl, "could not open chat")
	}
}

func (h *Handler) handleFrame(ctx context.Context, cl *WSClient, session *chat.Session, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(cl, "invalid frame")
		return
	}

	switch frame.Type {
	case FrameOpen:
		h.open(ctx, cl, session, frame.ConversationID)
	case FrameToken:
		session.SetToken(frame.Token)
		h.open(ctx, cl, session, frame.ConversationID)
	case FrameSend:
		_, err := session.Send(ctx, chat.SendParams{
			Content:    frame.Content,
			PropertyID: frame.PropertyID,
			Address:    frame.Address,
		})
		if err == nil || errors.Is(err, chat.ErrSendFailed) {
			return
		}
		var chatErr *chat.Error
		if errors.As(err, &chatErr) {
			h.sendError(cl, chatErr.Message)
			return
		}
		h.sendError(cl, "message could not be sent")
	default:
		h.sendError(cl, "unknown frame type")
	}
}

func (h *Handler) sendError(cl *WSClient, message string) {
	payload, err := json.Marshal(ErrorFrame{Type: FrameError, Error: message})
	if err != nil {
		return
	}
	cl.send(payload)
}

// StaffAlerts streams the staff alerts channel to agents and admins.
func (h *Handler) StaffAlerts(w http.ResponseWriter, r *http.Request) {
	id := h.chat.Identity(r.Context(), clientFromRequest(r))
	if !id.IsStaff() {
		http.Error(w, "staff only", http.StatusForbidden)
		return
	}

	if err := h.CreateRoom(context.Background(), realtime.StaffAlertsChannel); err != nil {
		h.log.Error("staff alerts subscription failed", "error", err)
		http.Error(w, "alerts unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", "error", err)
		return
	}

	cl := newClient(conn, id.UID+":"+uuid.NewString(), realtime.StaffAlertsChannel, h.log)
	if !h.hub.join(cl) {
		cl.close()
		return
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(nil, func() {
		h.hub.leave(cl)
	})
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.hub.Rooms()); err != nil {
		h.log.Warn("encode rooms failed", "error", err)
	}
}
