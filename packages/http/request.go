package http

import (
	"encoding/json"
	"fmt"
)

// Request is one smoke request. URL may be relative to the client base URL.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// SetJSONBody marshals v as the request body and sets the JSON content type.
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	r.Body = string(data)
	r.Headers["Content-Type"] = "application/json"
	return nil
}

// SetBearerToken sets the Authorization header to "Bearer <token>".
func (r *Request) SetBearerToken(token string) *Request {
	r.Headers["Authorization"] = "Bearer " + token
	return r
}
