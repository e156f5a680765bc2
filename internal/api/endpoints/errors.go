package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"ecolisting-chat-backend/internal/chat"
	conversationservice "ecolisting-chat-backend/internal/service/conversation"
)

func serviceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, chat.ErrSendFailed) {
		return &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "Message could not be sent, please retry", ErrorLog: err}
	}

	var chatErr *chat.Error
	if errors.As(err, &chatErr) {
		return &HTTPError{StatusCode: statusFor(string(chatErr.Code)), Message: chatErr.Message, ErrorLog: logError(chatErr.Message, chatErr.Err, chatErr)}
	}

	var svcErr *conversationservice.Error
	if errors.As(err, &svcErr) {
		status := statusFor(string(svcErr.Code))
		message := svcErr.Message
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
		return &HTTPError{StatusCode: status, Message: message, ErrorLog: logError(svcErr.Message, svcErr.Err, svcErr)}
	}

	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		ErrorLog:   fmt.Errorf("chat service: %w", err),
	}
}

func logError(message string, cause, self error) error {
	if cause != nil {
		return fmt.Errorf("%s: %w", message, cause)
	}
	return self
}

func statusFor(code string) int {
	switch code {
	case string(conversationservice.ErrorCodeValidation):
		return http.StatusBadRequest
	case string(conversationservice.ErrorCodeUnauthorized):
		return http.StatusUnauthorized
	case string(conversationservice.ErrorCodeForbidden):
		return http.StatusForbidden
	case string(conversationservice.ErrorCodeNotFound):
		return http.StatusNotFound
	case string(conversationservice.ErrorCodeConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
