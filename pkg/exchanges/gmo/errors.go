package gmo

import (
	"fmt"
	"net/http"
	"strings"
)

// Message is one entry of the exchange's error message list.
type Message struct {
	Code string `json:"message_code"`
	Text string `json:"message_string"`
}

// APIError is returned when the exchange answers with a non-zero status.
type APIError struct {
	Method   string
	Path     string
	Status   int
	Messages []Message
	Body     string
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, m.Code+" "+m.Text)
	}
	return fmt.Sprintf("gmo %s %s status %d: %s", e.Method, e.Path, e.Status, strings.Join(parts, "; "))
}

// Recoverable reports that a non-zero exchange status is treated as transient
// by default. Order placement call sites reclassify it as a rejection.
func (e *APIError) Recoverable() bool { return true }

// HasCode reports whether the exchange returned the given message code.
func (e *APIError) HasCode(code string) bool {
	for _, m := range e.Messages {
		if m.Code == code {
			return true
		}
	}
	return false
}

// RequestError covers transport faults, unexpected HTTP statuses and undecodable bodies.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gmo %s %s http %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("gmo %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Recoverable is false only for client-side HTTP errors that a retry cannot fix.
func (e *RequestError) Recoverable() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
	}
	return true
}
