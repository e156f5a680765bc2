package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ecolisting-chat-backend/internal/api"
)

type HTTPError = api.HTTPError

type ApiMessageResponse struct {
	Message string `json:"message"`
}

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method not allowed"),
	}
}

func decodeJSON(r *http.Request, v any, what string) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode %s: %w", what, err),
		}
	}
	return nil
}

// messagesPathID extracts {id} from "<prefix>{id}/messages".
func messagesPathID(path, prefix string) (string, error) {
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Conversation not found", ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}
	trimmed = strings.Trim(trimmed, "/")
	id, rest, _ := strings.Cut(trimmed, "/")
	if id == "" || rest != "messages" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("unknown conversation path: %s", path)}
	}
	return id, nil
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultInboxLimit
	}
	if n > maxInboxLimit {
		return maxInboxLimit
	}
	return n
}
