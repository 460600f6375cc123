package stormpath

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Error is returned for every non-2xx API response.
type Error struct {
	Method           string `json:"-"`
	URL              string `json:"-"`
	Status           int    `json:"status"`
	Code             int    `json:"code"`
	Message          string `json:"message"`
	DeveloperMessage string `json:"developerMessage"`
	MoreInfo         string `json:"moreInfo"`
}

func (e *Error) Error() string {
	msg := e.DeveloperMessage
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Method == "" {
		return fmt.Sprintf("status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, msg)
}

// Transient reports whether retrying the request may succeed.
func (e *Error) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient reports whether err is worth retrying: connection failures,
// throttling and server side errors. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return true
	}
	var netErr *transportError
	return errors.As(err, &netErr)
}

func IsNotFound(err error) bool {
	return isStatus(err, http.StatusNotFound)
}

func isStatus(err error, status int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == status
	}
	return false
}

// transportError wraps failures below HTTP: DNS, connection resets, timeouts.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// decodeError marks a 2xx response whose body could not be decoded, usually a
// truncated read.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func errorFromResponse(req *http.Request, resp *http.Response, service string) (error, bool) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, false
	}
	apiErr := &Error{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
	}
	if resp.Body != nil {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err == nil && len(body) > 0 {
			if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
				apiErr.Message = fmt.Sprintf("%s returned %q", service, string(body))
			}
		}
	}
	// The body may carry its own status; the transport status wins.
	apiErr.Status = resp.StatusCode
	return apiErr, true
}

func decodeResponseAsJSON(resp *http.Response, body io.Reader, output interface{}) error {
	if output == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(body).Decode(output); err != nil {
		if err == io.EOF {
			return nil
		}
		return &decodeError{err: errors.Wrapf(err, "decoding response from %s", resp.Request.URL)}
	}
	return nil
}
