package capture

import (
	"strings"

	"github.com/abdul-hamid-achik/portalsmoke/packages/http"
	"github.com/tidwall/gjson"
)

const (
	// PathToken is where register and login responses carry the bearer token.
	PathToken = "data.token"
	// PathUserEmail is where the login response carries the authenticated user's email.
	PathUserEmail = "data.user.email"
	// PathData is the payload envelope of every API response.
	PathData = "data"
	// PathHealthStatus is the status string reported by /health.
	PathHealthStatus = "status"
)

// errorPaths are tried in order when a rejected response explains itself.
// Only string values count, so an object under "error" falls through.
var errorPaths = []string{"error", "message", "error.message"}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
}

// NewExtractor parses the response body once. Bodies that are valid JSON are
// accepted even when the server forgot the Content-Type header.
func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if resp != nil && (resp.IsJSON() || gjson.ValidBytes(resp.Body)) && len(resp.Body) > 0 {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	return e
}

// IsJSON reports whether the body parsed as JSON.
func (e *Extractor) IsJSON() bool {
	return e.isJSON
}

// Value returns the value at path as a Go value (map, slice, string, float64, bool).
func (e *Extractor) Value(path string) (any, bool) {
	if !e.isJSON {
		return nil, false
	}
	if path == "" {
		return e.bodyJSON.Value(), true
	}
	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// String returns the value at path as a string. Missing and null values are empty.
func (e *Extractor) String(path string) string {
	if !e.isJSON {
		return ""
	}
	result := e.bodyJSON.Get(path)
	if !result.Exists() || result.Type == gjson.Null {
		return ""
	}
	return result.String()
}

func (e *Extractor) Token() string {
	return e.String(PathToken)
}

func (e *Extractor) UserEmail() string {
	return e.String(PathUserEmail)
}

func (e *Extractor) HealthStatus() string {
	return e.String(PathHealthStatus)
}

// Count returns the number of items in the data envelope. The second return
// value is false when data is missing or not an array.
func (e *Extractor) Count() (int, bool) {
	if !e.isJSON {
		return 0, false
	}
	data := e.bodyJSON.Get(PathData)
	if !data.IsArray() {
		return 0, false
	}
	return len(data.Array()), true
}

// ErrorMessage returns the remote error description, or "" when the body has none.
func (e *Extractor) ErrorMessage() string {
	if !e.isJSON {
		return ""
	}
	for _, path := range errorPaths {
		result := e.bodyJSON.Get(path)
		if result.Exists() && result.Type == gjson.String && strings.TrimSpace(result.Str) != "" {
			return result.Str
		}
	}
	return ""
}

// Header returns a response header value and whether it was present.
func (e *Extractor) Header(name string) (string, bool) {
	if e.response == nil || !e.response.HasHeader(name) {
		return "", false
	}
	return e.response.Header(name), true
}

// ExtractHeaders collects the named headers that are present on the response.
// Missing headers are left out of the map rather than stored as empty strings.
func ExtractHeaders(resp *http.Response, names []string) map[string]any {
	extractor := NewExtractor(resp)
	results := make(map[string]any)

	for _, name := range names {
		if value, ok := extractor.Header(name); ok {
			results[name] = value
		}
	}

	return results
}

// RejectionMessage describes a non-2xx response: the body's error field if
// present, otherwise the generic status description.
func RejectionMessage(resp *http.Response) string {
	if msg := NewExtractor(resp).ErrorMessage(); msg != "" {
		return msg
	}
	return resp.StatusError()
}
