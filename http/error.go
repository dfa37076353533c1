package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/caribhq/newsletter"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error parse HTTP error and write to header and body
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		hlog.FromRequest(r).Error().Msg(err.Error())

		clientError, ok := err.(ClientError)
		if !ok {
			// coded domain errors carry their own client status
			if status := statusFromCode(newsletter.ErrorCode(err)); status != http.StatusInternalServerError {
				clientError = &Error{Cause: err, Message: newsletter.ErrorMessage(err), Status: status}
			} else {
				sentry.CaptureException(err)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "An internal error has occurred.",
				})
				return
			}
		}

		body, err := clientError.Body()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		status, headers := clientError.Headers()
		for k, v := range headers {
			w.Header().Set(k, v)
		}

		w.WriteHeader(status)

		_, err = w.Write(body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
}

func statusFromCode(code string) int {
	switch code {
	case newsletter.ErrInvalid:
		return http.StatusBadRequest
	case newsletter.ErrUnauthorized:
		return http.StatusUnauthorized
	case newsletter.ErrForbidden:
		return http.StatusForbidden
	case newsletter.ErrNotFound:
		return http.StatusNotFound
	case newsletter.ErrConflict:
		return http.StatusConflict
	case newsletter.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message
type Error struct {
	Cause      error  `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"error"`
	Status     int    `json:"-"`
	RetryAfter int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Body returns response body from error
func (e *Error) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("error while parsing response body: %v", err)
	}
	return body, nil
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
	if e.RetryAfter > 0 {
		headers["Retry-After"] = strconv.Itoa(e.RetryAfter)
	}
	return e.Status, headers
}

// NewError returns new error message
func NewError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
	}
}

// bestEffort runs a side effect whose failure is logged and reported but
// never fails the request.
func (s *Server) bestEffort(r *http.Request, op string, fn func() error) {
	if err := fn(); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msgf("best-effort %s failed", op)
		sentry.CaptureException(err)
	}
}
