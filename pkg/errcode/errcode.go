package errcode

import (
	"errors"
	"fmt"
)

// Kind groups error codes into the categories callers branch on.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidOperation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindTransient:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is reports whether target carries the same code, so wrapped copies still
// match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind returns the category of the error code
func (e *Error) Kind() Kind {
	return kinds[e.Code]
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// From extracts a business error from err, falling back to ErrInternalServer.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer.Wrap(err)
}

// KindOf returns the category of any error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam    = New(1001, "invalid parameter")
	ErrInternalServer  = New(1002, "internal server error")
	ErrUnauthenticated = New(1003, "unauthenticated")
	ErrForbidden       = New(1004, "forbidden")
	ErrNotFound        = New(1005, "not found")
	ErrTooManyRequests = New(1006, "too many requests")
	ErrNoPermission    = New(1007, "no permission to access this resource")
	ErrTransient       = New(1008, "service temporarily unavailable")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")

	// Conversation and message errors (4xxx)
	ErrMessageNotFound       = New(4001, "message not found")
	ErrConvNotFound          = New(4003, "conversation not found")
	ErrSeqAllocFailed        = New(4004, "seq allocation failed")
	ErrSendFailed            = New(4005, "message send failed")
	ErrPullFailed            = New(4006, "message pull failed")
	ErrSelfConversation      = New(4007, "cannot start a conversation with yourself")
	ErrEmptyMessage          = New(4008, "message has neither content nor attachments")
	ErrConversationInactive  = New(4009, "conversation is inactive")
	ErrNotParticipant        = New(4010, "not a conversation participant")
	ErrCatalogItemNotFound   = New(4011, "catalog item not found")
	ErrContentTooLong        = New(4012, "message content too long")
	ErrInvalidAttachment     = New(4013, "invalid attachment")
	ErrSystemMessageRejected = New(4014, "system messages cannot be sent by clients")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")
)

var kinds = map[int]Kind{
	1001: KindInvalidOperation,
	1003: KindUnauthenticated,
	1004: KindForbidden,
	1005: KindNotFound,
	1006: KindTransient,
	1007: KindForbidden,
	1008: KindTransient,
	2001: KindUnauthenticated,
	2002: KindUnauthenticated,
	2003: KindUnauthenticated,
	2004: KindUnauthenticated,
	4001: KindNotFound,
	4003: KindNotFound,
	4004: KindTransient,
	4005: KindTransient,
	4006: KindTransient,
	4007: KindInvalidOperation,
	4008: KindInvalidOperation,
	4009: KindInvalidOperation,
	4010: KindForbidden,
	4011: KindNotFound,
	4012: KindInvalidOperation,
	4013: KindInvalidOperation,
	4014: KindInvalidOperation,
	5001: KindTransient,
	5002: KindTransient,
	5003: KindInvalidOperation,
	5004: KindTransient,
}
