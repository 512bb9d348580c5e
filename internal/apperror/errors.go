// Package apperror defines the error taxonomy shared by services, the worker and HTTP handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable error code.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindUpstream            Kind = "upstream_generation_failed"
	KindPersistence         Kind = "persistence_failed"
	KindAuthRequired        Kind = "auth_required"
	KindAuthExchange        Kind = "auth_exchange_failed"
	KindUnsupportedPlatform Kind = "unsupported_platform"
	KindInvalidState        Kind = "invalid_state"
	KindPublish             Kind = "publish_failed"
	KindInternal            Kind = "internal"
)

// Sub-codes carried by KindAuthExchange errors.
const (
	CodeInvalidGrant         = "invalid_grant"
	CodeUpstreamUnavailable  = "upstream_unavailable"
	CodeIdentityLookupFailed = "identity_lookup_failed"
)

// Error is the concrete error type. Message is safe to show to API clients; Err is not.
type Error struct {
	Kind    Kind
	Code    string // optional sub-code
	Op      string // operation that failed, e.g. "scripts.update"
	Stage   string // pipeline stage for upstream failures
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can use errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// InvalidInput reports a failed caller precondition.
func InvalidInput(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent or soft-deleted entity.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Upstream reports a generation backend failure at the given stage.
func Upstream(stage string, err error) *Error {
	return &Error{Kind: KindUpstream, Stage: stage, Message: "generation backend failed", Err: err}
}

// Persistence reports a storage write that failed, possibly after an external side effect.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: "storage write failed", Err: err}
}

// AuthRequired reports that the user has no usable credential bundle.
func AuthRequired(userID string) *Error {
	return &Error{Kind: KindAuthRequired, Message: "platform authorization required for user " + userID}
}

// AuthExchange reports a failed authorization-code exchange with a sub-code.
func AuthExchange(code string, err error) *Error {
	return &Error{Kind: KindAuthExchange, Code: code, Message: "authorization exchange failed (" + code + ")", Err: err}
}

// UnsupportedPlatform reports a publish target with no registered handler.
func UnsupportedPlatform(platform string) *Error {
	return &Error{Kind: KindUnsupportedPlatform, Message: fmt.Sprintf("platform %q is not supported", platform)}
}

// InvalidState reports an entity that is not in a state allowing the operation.
func InvalidState(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Publish reports a failed publish attempt.
func Publish(platform string, err error) *Error {
	return &Error{Kind: KindPublish, Message: "publish to " + platform + " failed", Err: err}
}

// Wrap attaches an operation name to err. Errors already carrying a Kind keep it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Op == "" {
			cp := *ae
			cp.Op = op
			return &cp
		}
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Message: "unexpected error", Err: err}
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the sub-code of err, or "".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindUnsupportedPlatform:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthRequired, KindAuthExchange:
		return http.StatusUnauthorized
	case KindInvalidState:
		return http.StatusConflict
	case KindUpstream, KindPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	switch ae.Kind {
	case KindPersistence, KindInternal:
		return "internal error"
	case KindUpstream:
		if ae.Stage != "" {
			return ae.Stage + ": " + ae.Message
		}
	}
	return ae.Message
}
