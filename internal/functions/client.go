package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Event string

const (
	EventCustomerMessage    Event = "user_message"
	EventAutomatedReplySent Event = "assistant_replied"
)

type NotifyPayload struct {
	Event          Event  `json:"event"`
	Text           string `json:"text,omitempty"`
	Excerpt        string `json:"excerpt"`
	ConversationID string `json:"conversation_id,omitempty"`
	FromUID        string `json:"from_uid,omitempty"`
	VisitorID      string `json:"visitor_id,omitempty"`
	PropertyID     string `json:"property_id,omitempty"`
	Address        string `json:"address,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Source         string `json:"source,omitempty"`
}

// NotifyResult may name a conversation the notify function opened for a
// guest.
type NotifyResult struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Function   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    httpClient,
	}
}

// ShouldAutoReply asks the policy RPC whether the automated responder may
// answer in conversationID.
func (c *Client) ShouldAutoReply(ctx context.Context, conversationID string, lookback time.Duration) (bool, error) {
	body := map[string]interface{}{
		"_conversation_id":  conversationID,
		"_lookback_seconds": int(lookback / time.Second),
	}
	var decision bool
	if err := c.call(ctx, "should_ai_reply", c.baseURL+"/rest/v1/rpc/should_ai_reply", "", body, &decision); err != nil {
		return false, err
	}
	return decision, nil
}

// TriggerAutoReply starts the automated responder. Its reply arrives later
// on the conversation's change feed.
func (c *Client) TriggerAutoReply(ctx context.Context, conversationID, bearer string) error {
	endpoint := c.baseURL + "/functions/v1/ai-reply?conversation_id=" + url.QueryEscape(conversationID)
	return c.call(ctx, "ai-reply", endpoint, bearer, map[string]string{}, nil)
}

// GuestReply produces a reply for a guest from local history alone.
func (c *Client) GuestReply(ctx context.Context, history []HistoryEntry) (string, error) {
	var res struct {
		Reply   string `json:"reply"`
		Content string `json:"content"`
	}
	body := map[string]interface{}{"history": history}
	if err := c.call(ctx, "ai-reply", c.baseURL+"/functions/v1/ai-reply", "", body, &res); err != nil {
		return "", err
	}
	if res.Reply != "" {
		return res.Reply, nil
	}
	return res.Content, nil
}

func (c *Client) StaffNotify(ctx context.Context, payload NotifyPayload) (NotifyResult, error) {
	var res NotifyResult
	if err := c.call(ctx, "chat-notify", c.baseURL+"/functions/v1/chat-notify", "", payload, &res); err != nil {
		return NotifyResult{}, err
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, name, endpoint, bearer string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("function %s: encode body: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("function %s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("function %s: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("function %s: read response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Function: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("function %s: decode response: %w", name, err)
	}
	return nil
}
