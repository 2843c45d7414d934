package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
)

// GenericMessage is shown when the backend gives no usable message.
const GenericMessage = "Something went wrong. Please try again."

// AppError is a non-2xx answer from the backend.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// ServerProvided is false when Message is the generic fallback.
	ServerProvided bool `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrNotFound     = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrUnauthorized = &AppError{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrForbidden    = &AppError{Code: http.StatusForbidden, Message: "Forbidden"}
)

// Is matches on status code so callers can use errors.Is(err, ErrNotFound).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code int, message string) *AppError {
	return &AppError{Code: code, Message: message, ServerProvided: true}
}

// FromResponse builds an AppError from a backend error body. The backend's
// "detail" field wins over "error". Otherwise the first field-level
// validation message, in key order, is shown as "field: message".
func FromResponse(code int, body []byte) *AppError {
	msg := extractMessage(body)
	if msg == "" {
		return &AppError{Code: code, Message: GenericMessage}
	}
	return &AppError{Code: code, Message: msg, ServerProvided: true}
}

func extractMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error"} {
		if msg := flatten(payload[key]); msg != "" {
			return msg
		}
	}
	return flattenFields(payload)
}

func flattenFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg := flatten(fields[k])
		if msg == "" {
			continue
		}
		if k == "non_field_errors" {
			return msg
		}
		return k + ": " + msg
	}
	return ""
}

func flatten(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		return flattenFields(val)
	default:
		return ""
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// Message returns the text to show the operator for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return GenericMessage
}
