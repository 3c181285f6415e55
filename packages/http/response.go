package http

import (
	"fmt"
	"strings"
	"time"
)

// Response is a fully read response. Duration covers the round trip and
// reading the body.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Header returns the first value of the named header, matching case-insensitively.
func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// HasHeader reports whether the response carried the named header at all.
func (r *Response) HasHeader(key string) bool {
	for k := range r.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r *Response) IsJSON() bool {
	return strings.Contains(r.Header("Content-Type"), "application/json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is the generic description used when a non-2xx response
// carries no error field of its own.
func (r *Response) StatusError() string {
	return fmt.Sprintf("Request failed with status code %d", r.StatusCode)
}
