package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Error kinds surfaced by the gateway and the orchestrator.
var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoImageData       = errors.New("no image data found in response")
	ErrNoVideoURI        = errors.New("video generation returned no uri")
	ErrAuthorization     = errors.New("authorization failure")
	ErrTransient         = errors.New("transient failure")
	ErrTimeout           = errors.New("operation timed out")
)

// Kind is the coarse error category exposed to callers.
type Kind string

const (
	KindNone              Kind = ""
	KindMalformedResponse Kind = "malformed_response"
	KindNoImageData       Kind = "no_image_data"
	KindNoVideoURI        Kind = "no_video_uri"
	KindAuthorization     Kind = "authorization_failure"
	KindTransient         Kind = "transient_failure"
	KindTimeout           Kind = "timeout"
)

// notFoundPhrase is what the video endpoint says when the key lacks Veo access.
const notFoundPhrase = "Requested entity was not found"

// GatewayError is the normalized form of every failure coming back from the AI
// backend: HTTP-style code, RPC status and message.
type GatewayError struct {
	Op      string
	Code    int
	Status  string
	Message string
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, "Error %d", e.Code)
		if e.Status != "" {
			fmt.Fprintf(&b, " %s", e.Status)
		}
		b.WriteString(", ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Is lets errors.Is(err, ErrAuthorization) and errors.Is(err, ErrTransient)
// work on normalized errors.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrAuthorization:
		return e.notFound()
	case ErrTransient:
		return !e.notFound()
	}
	return false
}

func (e *GatewayError) notFound() bool {
	if e.Code == 404 || e.Status == "NOT_FOUND" {
		return true
	}
	return strings.Contains(e.Message, "404") ||
		strings.Contains(e.Message, "Not Found") ||
		strings.Contains(e.Message, notFoundPhrase)
}

// RateLimited reports a 429 / RESOURCE_EXHAUSTED response.
func (e *GatewayError) RateLimited() bool {
	return e.Code == 429 || e.Status == "RESOURCE_EXHAUSTED"
}

// Classify maps any error to its Kind. It is the only place that decides
// whether a failure is eligible for credential recovery.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrNoImageData):
		return KindNoImageData
	case errors.Is(err, ErrNoVideoURI):
		return KindNoVideoURI
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	}
	return KindTransient
}

// Normalize converts SDK errors into *GatewayError. Errors that already carry a
// kind are returned unchanged.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) || isKind(err) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &GatewayError{Op: op, Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &GatewayError{Op: op, Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return &GatewayError{Op: op, Message: err.Error()}
}

// operationError normalizes the error map of a finished long-running operation.
func operationError(op string, m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	ge := &GatewayError{Op: op}
	switch code := m["code"].(type) {
	case float64:
		ge.Code = int(code)
	case int:
		ge.Code = code
	case int32:
		ge.Code = int(code)
	case int64:
		ge.Code = int(code)
	}
	if msg, ok := m["message"].(string); ok {
		ge.Message = msg
	}
	if status, ok := m["status"].(string); ok {
		ge.Status = status
	}
	if ge.Message == "" {
		ge.Message = fmt.Sprintf("operation failed: %v", m)
	}
	return ge
}

func isKind(err error) bool {
	for _, k := range []error{ErrMalformedResponse, ErrNoImageData, ErrNoVideoURI, ErrAuthorization, ErrTransient, ErrTimeout} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
