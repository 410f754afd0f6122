package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error describes a failure talking to an external provider. The Recoverable
// flag drives the translation retry policy: transient failures (timeouts,
// refused connections, 5xx responses) are retried within the attempt budget,
// permanent ones (misconfiguration, auth failures, malformed provider
// output) are surfaced immediately.
type Error struct {
	Provider    string // "llm", "ocr", "embedding"
	Op          string
	Status      int // HTTP status when applicable, 0 otherwise
	Recoverable bool
	Err         error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Provider)
	sb.WriteByte(' ')
	sb.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.Status)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider failure.
func Transient(providerName, op string, err error) *Error {
	return &Error{Provider: providerName, Op: op, Recoverable: true, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(providerName, op string, err error) *Error {
	return &Error{Provider: providerName, Op: op, Recoverable: false, Err: err}
}

// IsRecoverable reports whether err is a provider error marked transient.
func IsRecoverable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Recoverable
}

// statusError maps a non-2xx HTTP response to a provider error. Request
// timeouts, rate limits and 5xx responses are transient; everything else is
// permanent. The message is taken from an OpenAI-style error body when one
// is present, otherwise from the raw body.
func statusError(providerName, op string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	var wire struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != nil && wire.Error.Message != "" {
		msg = wire.Error.Message
	}
	if r := []rune(msg); len(r) > 200 {
		msg = string(r[:200])
	}
	return &Error{
		Provider:    providerName,
		Op:          op,
		Status:      status,
		Recoverable: status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500,
		Err:         errors.New(msg),
	}
}
