package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a trimmed string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Body))
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("transport: empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// Object returns the body as a JSON object, or nil when it is not one.
func (r *Response) Object() map[string]any {
	var obj map[string]any
	if err := r.DecodeJSON(&obj); err != nil {
		return nil
	}
	return obj
}

// Data normalises the body into a map. JSON objects pass through verbatim;
// any other JSON value or plain text is stored under "response".
func (r *Response) Data() map[string]any {
	if obj := r.Object(); obj != nil {
		return obj
	}
	var generic any
	if err := r.DecodeJSON(&generic); err == nil {
		return map[string]any{"response": generic}
	}
	return map[string]any{"response": r.Text()}
}
