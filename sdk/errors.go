package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeUnauthenticated = 1003
	CodeForbidden       = 1004
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006
	CodeNoPermission    = 1007
	CodeTransient       = 1008

	// Auth errors (2xxx)
	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004

	// Conversation and message errors (4xxx)
	CodeMessageNotFound       = 4001
	CodeConvNotFound          = 4003
	CodeSeqAllocFailed        = 4004
	CodeSendFailed            = 4005
	CodePullFailed            = 4006
	CodeSelfConversation      = 4007
	CodeEmptyMessage          = 4008
	CodeConversationInactive  = 4009
	CodeNotParticipant        = 4010
	CodeCatalogItemNotFound   = 4011
	CodeContentTooLong        = 4012
	CodeInvalidAttachment     = 4013
	CodeSystemMessageRejected = 4014
)

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthenticated = NewError(CodeUnauthenticated, "unauthenticated")
	ErrNoPermission    = NewError(CodeNoPermission, "no permission to access this resource")
	ErrTransient       = NewError(CodeTransient, "service temporarily unavailable")

	ErrTokenInvalid = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "token expired")

	ErrConvNotFound         = NewError(CodeConvNotFound, "conversation not found")
	ErrSelfConversation     = NewError(CodeSelfConversation, "cannot start a conversation with yourself")
	ErrEmptyMessage         = NewError(CodeEmptyMessage, "message has neither content nor attachments")
	ErrConversationInactive = NewError(CodeConversationInactive, "conversation is inactive")
	ErrNotParticipant       = NewError(CodeNotParticipant, "not a conversation participant")
)

// Local timeline errors
var (
	ErrEntryNotFound   = errors.New("timeline entry not found")
	ErrEntryNotFailed  = errors.New("timeline entry has not failed")
	ErrNotLoaded       = errors.New("timeline has not been loaded")
	ErrLoadInProgress  = errors.New("a page load is already in progress")
	ErrStreamClosed    = errors.New("realtime stream closed")
	ErrSubscribeFailed = errors.New("subscribe was not acknowledged")
)
