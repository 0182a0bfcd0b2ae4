package ftp

import (
	"errors"
	"fmt"
)

//nolint:revive // exported constants are intentionally grouped here
const (
	// Common FTP reply codes exported for callers to avoid magic numbers
	Code150 = 150
	Code200 = 200
	Code213 = 213
	Code215 = 215
	Code220 = 220
	Code221 = 221
	Code226 = 226
	Code227 = 227
	Code230 = 230
	Code250 = 250
	Code257 = 257
	Code331 = 331
	Code350 = 350
	Code421 = 421
	Code425 = 425
	Code500 = 500
	Code501 = 501
	Code502 = 502
	Code503 = 503
	Code504 = 504
	Code530 = 530
	Code550 = 550
)

// ErrorKind classifies a protocol-level failure. Every kind maps to a
// canonical terminal reply code; handlers never send anything else for
// a failed command.
type ErrorKind int

// Error kinds recognised by the reply layer.
const (
	// KindNotAuthenticated is returned for commands issued before login.
	KindNotAuthenticated ErrorKind = iota

	// KindSequence covers out-of-order commands such as PASS without a
	// preceding USER or RNTO without RNFR.
	KindSequence

	// KindBadArgument covers malformed or unparsable arguments.
	KindBadArgument

	// KindUnsupportedParameter covers recognised commands with parameter
	// values this server does not implement (e.g. TYPE E).
	KindUnsupportedParameter

	// KindNotFound covers missing files and directories.
	KindNotFound

	// KindConflict covers operations refused because of existing state,
	// such as MKD on an existing path.
	KindConflict

	// KindSandboxViolation covers paths that resolve outside the root.
	KindSandboxViolation

	// KindDataChannelUnavailable covers failures to establish the data
	// connection for a transfer.
	KindDataChannelUnavailable

	// KindTransferFailed covers I/O errors between the 150 and the
	// terminal reply of a transfer.
	KindTransferFailed

	// KindUnknownCommand covers verbs outside the implemented set.
	KindUnknownCommand
)

// Code returns the canonical reply code for the kind.
func (k ErrorKind) Code() int {
	switch k {
	case KindNotAuthenticated:
		return Code530
	case KindSequence:
		return Code503
	case KindBadArgument:
		return Code501
	case KindUnsupportedParameter:
		return Code504
	case KindNotFound, KindConflict, KindSandboxViolation, KindTransferFailed:
		return Code550
	case KindDataChannelUnavailable:
		return Code425
	case KindUnknownCommand:
		return Code502
	default:
		return Code550
	}
}

// String returns a short name for the kind, used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindSequence:
		return "bad_sequence"
	case KindBadArgument:
		return "bad_argument"
	case KindUnsupportedParameter:
		return "unsupported_parameter"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindSandboxViolation:
		return "sandbox_violation"
	case KindDataChannelUnavailable:
		return "data_channel_unavailable"
	case KindTransferFailed:
		return "transfer_failed"
	case KindUnknownCommand:
		return "unknown_command"
	default:
		return "unknown"
	}
}

// Error is a protocol failure with its classification and the message
// shown to the client after the reply code.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Kind.Code(), e.Message)
}

// NewError creates a classified protocol error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified protocol error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FormatReply renders the single-line wire form "CCC SP text CRLF".
// Multiline responses are never emitted by this server.
func FormatReply(code int, message string) string {
	return fmt.Sprintf("%d %s\r\n", code, message)
}

// ReplyFor maps any error to the (code, message) pair a handler should
// send. Classified errors use their canonical code; everything else
// collapses to 550 with a short message so native error text never
// leaks structure to the client.
func ReplyFor(err error) (int, string) {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind.Code(), ferr.Message
	}
	return Code550, "Requested action not taken."
}
