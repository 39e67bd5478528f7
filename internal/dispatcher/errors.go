package dispatcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout is returned when the webhook does not answer before the
// deadline or the request is aborted
var ErrTimeout = errors.New("webhook request timed out")

// HTTPStatusError is a non-2xx webhook response
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d", e.Code)
}

// MalformedResponseError is a 2xx response whose body is not valid JSON
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("webhook returned invalid JSON: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NetworkError is a transport failure (DNS, connection refused, reset)
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("webhook unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// User-facing messages
const (
	MsgUnavailable   = "The service is temporarily unavailable. Please try again later."
	MsgInternalError = "An internal error occurred. Please retry later."
	MsgServerError   = "Server error: "
	MsgMalformed     = "The server returned invalid JSON: "
	MsgTimeout       = "The request timed out. Please try again."
	MsgNetwork       = "Network error. Check your connection and try again."
)

// Hints shown under the message in the error panel
const (
	HintTimeout = "The request took too long. Please try again."
	HintDefault = "Please try again."
)

// Hint returns the recovery hint for a Dispatch error
func Hint(err error) string {
	if errors.Is(err, ErrTimeout) {
		return HintTimeout
	}
	return HintDefault
}

// UserMessage converts a Dispatch error into the text shown to the user
// and the status code to display next to it (0 when there is none).
func UserMessage(err error) (string, int) {
	var statusErr *HTTPStatusError
	var malformedErr *MalformedResponseError

	switch {
	case err == nil:
		return "", 0
	case errors.Is(err, ErrTimeout):
		return MsgTimeout, 0
	case errors.As(err, &statusErr):
		switch statusErr.Code {
		case http.StatusNotFound:
			return MsgUnavailable, statusErr.Code
		case http.StatusInternalServerError:
			return MsgInternalError, statusErr.Code
		}
		detail := statusErr.Body
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", statusErr.Code)
		}
		return MsgServerError + detail, statusErr.Code
	case errors.As(err, &malformedErr):
		return MsgMalformed + malformedErr.Body, 0
	default:
		return MsgNetwork, 0
	}
}

// Kind names the error category, as used in JSON error responses
func Kind(err error) string {
	var statusErr *HTTPStatusError
	var malformedErr *MalformedResponseError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &malformedErr):
		return "malformed_response"
	default:
		return "network_error"
	}
}
