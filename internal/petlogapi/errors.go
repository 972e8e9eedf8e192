package petlogapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/petlog-console/internal/common"
)

// ErrUnavailable wraps transport failures (timeouts, refused connections,
// open breaker) where the API produced no answer.
var ErrUnavailable = errors.New("petlogapi: upstream unavailable")

// APIError is a non-2xx answer from the API. Message is empty when the body
// carried none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("petlogapi: %d HTTP %d", e.Status, e.Status)
	}
	return fmt.Sprintf("petlogapi: %d %s", e.Status, e.Message)
}

// ServerMessage returns the message the API attached to err, if any.
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message, true
	}
	return "", false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// decodeError reads the {"message": ...} error body. The message may be a
// string or a list of validation messages.
func decodeError(status int, body []byte) *APIError {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Message) > 0 {
		var single string
		var many []string
		switch {
		case json.Unmarshal(payload.Message, &single) == nil:
			msg = single
		case json.Unmarshal(payload.Message, &many) == nil:
			msg = strings.Join(many, "; ")
		}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(msg)}
}

// AppError maps an API failure onto the console error envelope. A 4xx keeps
// its status; anything else is a 502. The raw server message is preferred
// over fallback.
func AppError(err error, code, fallback string) *common.AppError {
	status := http.StatusBadGateway
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
	}
	msg := fallback
	if m, ok := ServerMessage(err); ok {
		msg = m
	}
	return common.NewAppError(code, msg, status, err)
}
