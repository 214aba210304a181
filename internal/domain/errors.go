package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a product or collection does not exist on the store
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrGeneration is returned when the text generation API request fails
	ErrGeneration = errors.New("text generation failed")

	// ErrEmptyCompletion is returned when the generator answered without any text
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrCommerceAPI is returned when a commerce admin API request fails
	ErrCommerceAPI = errors.New("commerce API request failed")

	// ErrJobNotFound is returned when a run id is unknown or already finished
	ErrJobNotFound = errors.New("job not found")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrMalformedResponse is returned when an API answered with a body that
	// cannot be decoded. It is never retried.
	ErrMalformedResponse = errors.New("malformed response")
)

// GenerationError wraps a failed call to the text generation API.
type GenerationError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s after %d attempt(s): status %d: %v", ErrGeneration, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrGeneration, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}

// Temporary reports whether the failure is worth retrying. Without a
// status only transport failures are transient.
func (e *GenerationError) Temporary() bool {
	if errors.Is(e.Err, ErrMalformedResponse) {
		return false
	}
	if e.StatusCode != 0 {
		return isTransientStatus(e.StatusCode)
	}
	return IsTransportError(e.Err)
}

// CommerceAPIError wraps a failed call to the commerce admin API.
type CommerceAPIError struct {
	Operation  string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *CommerceAPIError) Error() string {
	var b strings.Builder
	b.WriteString(ErrCommerceAPI.Error())
	if e.Operation != "" {
		b.WriteString(": ")
		b.WriteString(e.Operation)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CommerceAPIError) Unwrap() []error {
	errs := []error{ErrCommerceAPI}
	if e.StatusCode == http.StatusNotFound {
		errs = append(errs, ErrNotFound)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Temporary reports whether the failure is worth retrying. Error statuses
// are classified by code; otherwise only transport failures are transient.
func (e *CommerceAPIError) Temporary() bool {
	if errors.Is(e.Err, ErrMalformedResponse) {
		return false
	}
	if e.StatusCode >= http.StatusMultipleChoices {
		return isTransientStatus(e.StatusCode)
	}
	return IsTransportError(e.Err)
}

// RetryAfterDelay exposes the server supplied Retry-After duration.
func (e *CommerceAPIError) RetryAfterDelay() time.Duration {
	return e.RetryAfter
}

// FieldError is a single user error returned by a GraphQL mutation.
type FieldError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// UserErrors is returned when a mutation was accepted but rejected field-level input.
type UserErrors struct {
	Operation string
	Errors    []FieldError
}

func (e *UserErrors) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		path := strings.Join(fe.Field, ".")
		switch {
		case path != "" && fe.Code != "":
			messages = append(messages, fmt.Sprintf("%s: %s (%s)", path, fe.Message, fe.Code))
		case path != "":
			messages = append(messages, fmt.Sprintf("%s: %s", path, fe.Message))
		default:
			messages = append(messages, fe.Message)
		}
	}
	return fmt.Sprintf("%s: %s user errors: %s", ErrCommerceAPI, e.Operation, strings.Join(messages, "; "))
}

func (e *UserErrors) Unwrap() error {
	return ErrCommerceAPI
}

// OwnerTypeMismatch reports whether the store rejected a custom field write
// because the field definition belongs to another owner type.
func (e *UserErrors) OwnerTypeMismatch() bool {
	for _, fe := range e.Errors {
		code := strings.ToUpper(fe.Code)
		msg := strings.ToLower(fe.Message)
		if strings.Contains(code, "OWNER_TYPE") || strings.Contains(msg, "owner type") {
			return true
		}
	}
	return false
}

// IsTransportError reports whether err is a network level failure such as
// a refused connection, a reset or a timeout. Cancellation is not.
func IsTransportError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
