package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Business errors carry an i18n key and are localized with the request
// locale. Everything else is classified by type first (export sentinels,
// PostgreSQL error codes, context errors) and then by message pattern.
//
// # Business Errors (BIZ001-BIZ099)
//
//	BIZ001 - Rule violation: the operation is not allowed in the record's state
//	BIZ002 - Not found: the record does not exist in the caller's organization
//	BIZ003 - Invalid value: a field or status value is not accepted
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Illegal file name: the file name contains a path separator
//	EXP002 - Task limit: the user already has too many exports in progress
//	EXP003 - Blank argument: file name, organization or selection is empty
//	EXP004 - Task not found: the export task does not exist for the caller
//	EXP005 - File not ready: the task has not finished successfully
//
// # Database Errors (DB001-DB099)
//
//	DB002 - Unique constraint (23505)
//	DB003 - Foreign key (23503)
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout or statement cancelled (57014)
//	DB007 - Deadlock (40P01)
//
// # Field Errors (FLD001-FLD099)
//
//	FLD001 - No resolver: the form uses a field type this server does not know
//	FLD002 - Invalid value: a field value cannot be converted for its type
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request was cancelled
//	REQ002 - Request timed out
//	REQ003 - Not authenticated
//	REQ004 - Too many batch operations are running
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the application
// logs for the technical error, which is logged with the request id.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/repository"
)

// Business error codes.
const (
	CodeRule     = "BIZ001"
	CodeNotFound = "BIZ002"
	CodeInvalid  = "BIZ003"
)

// ErrNotFound matches every "record does not exist" error, whether it comes
// from a repository or a BusinessError built with NotFound.
var ErrNotFound = repository.ErrNotFound

// ErrUnauthenticated is returned when a request carries no identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Translator localizes message keys with the locale stored in ctx.
type Translator interface {
	T(ctx context.Context, key string, args ...any) string
}

// BusinessError is a rule violation reported to the user. Key is an i18n
// message key and Args its format arguments.
type BusinessError struct {
	Key  string
	Code string
	Args []any
}

func (e *BusinessError) Error() string {
	if len(e.Args) == 0 {
		return e.Key
	}
	return fmt.Sprintf("%s %v", e.Key, e.Args)
}

// Is lets errors.Is(err, ErrNotFound) match not-found business errors.
func (e *BusinessError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}

// Reject returns a rule violation for key.
func Reject(key string, args ...any) *BusinessError {
	return &BusinessError{Key: key, Code: CodeRule, Args: args}
}

// NotFound returns a not-found error for key.
func NotFound(key string) *BusinessError {
	return &BusinessError{Key: key, Code: CodeNotFound}
}

// Invalid returns an invalid-value error for key.
func Invalid(key string, args ...any) *BusinessError {
	return &BusinessError{Key: key, Code: CodeInvalid, Args: args}
}

// notFoundAs converts a repository miss into NotFound(key) and passes other
// errors through.
func notFoundAs(err error, key string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound(key)
	}
	return err
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// sentinelMessage maps a sentinel error to a localized message key.
type sentinelMessage struct {
	err  error
	key  string
	code string
}

var sentinelMessages = []sentinelMessage{
	{export.ErrIllegalFileName, "export.file_name.illegal", "EXP001"},
	{export.ErrTooManyTasks, "export.task.limit", "EXP002"},
	{export.ErrInvalidArgument, "export.argument.blank", "EXP003"},
	{export.ErrTaskNotFound, "export.task.not.exist", "EXP004"},
	{export.ErrFileNotReady, "export.file.not.ready", "EXP005"},
}

// pgMessages maps PostgreSQL SQLSTATE codes.
var pgMessages = map[string]UserMessage{
	"23505": {Message: "This value must be unique but already exists", Action: "Check for duplicate entries", Code: "DB002"},
	"23503": {Message: "Referenced record does not exist", Action: "Refresh the page and select an existing record", Code: "DB003"},
	"40P01": {Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB007"},
	"57014": {Message: "Operation timed out", Action: "Please try again later", Code: "DB006"},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively with strings.Contains. The
// first match wins, so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
}

var (
	requestCancelled = UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "REQ001"}
	requestTimeout   = UserMessage{Message: "Request timed out", Action: "Please try again later", Code: "REQ002"}
	unauthenticated  = UserMessage{Message: "Authentication required", Action: "Sign in again", Code: "REQ003"}
	tooManyBatches   = UserMessage{Message: "Too many batch operations are running", Action: "Please try again in a few moments", Code: "REQ004"}
	noResolver       = UserMessage{Message: "The form uses an unsupported field type", Action: "Ask an administrator to check the form configuration", Code: "FLD001"}
	invalidValue     = UserMessage{Message: "A field value is invalid", Action: "Check the highlighted fields and try again", Code: "FLD002"}
)

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err into a user message. Business errors and export
// sentinels are translated with tr using the locale in ctx.
func MapError(ctx context.Context, tr Translator, err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var be *BusinessError
	if errors.As(err, &be) {
		return UserMessage{Message: tr.T(ctx, be.Key, be.Args...), Code: be.Code}
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return UserMessage{Message: tr.T(ctx, s.key), Code: s.code}
		}
	}
	if errors.Is(err, ErrNotFound) {
		return UserMessage{Message: "The record does not exist", Action: "Refresh the page", Code: CodeNotFound}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := pgMessages[pgErr.Code]; ok {
			return msg
		}
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return unauthenticated
	case errors.Is(err, ErrTooManyBatches):
		return tooManyBatches
	case errors.Is(err, context.Canceled):
		return requestCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return requestTimeout
	case errors.Is(err, field.ErrNoResolver):
		return noResolver
	case errors.Is(err, field.ErrInvalidValue):
		return invalidValue
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(ctx context.Context, tr Translator, err error) bool {
	if err == nil {
		return false
	}
	return MapError(ctx, tr, err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err with MapError. Returns nil if err is nil.
func NewUserError(ctx context.Context, tr Translator, err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(ctx, tr, err),
	}
}
