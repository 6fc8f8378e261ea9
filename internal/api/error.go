package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is any non-2xx reply from the server. The backend answers with
// JSON bodies on some routes and bare http.Error text on others, so both
// forms are kept.
type Error struct {
	Status int
	Body   map[string]any
	Raw    string
}

func (e *Error) Error() string {
	if msg := e.message(); msg != "" {
		return fmt.Sprintf("server: %s", msg)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func (e *Error) message() string {
	if e.Body != nil {
		if msg, ok := e.Body["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(e.Raw)
}

func (e *Error) Unauthorized() bool { return e.Status == http.StatusUnauthorized }
func (e *Error) Forbidden() bool    { return e.Status == http.StatusForbidden }

// TokenExpired reports a 401 whose body signals an expired bearer token.
func (e *Error) TokenExpired() bool {
	return e.Unauthorized() && strings.Contains(strings.ToLower(e.message()), "expired token")
}

// NotApproved reports the login rejection for a registered but not yet
// approved device.
func (e *Error) NotApproved() bool {
	return e.Forbidden() && strings.Contains(strings.ToLower(e.message()), "not approved")
}

// AsError unwraps err into an *Error when it carries one.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func errorFromResponse(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		apiErr.Raw = string(data)
		var body map[string]any
		if json.Unmarshal(data, &body) == nil {
			apiErr.Body = body
		}
	}
	return apiErr
}
