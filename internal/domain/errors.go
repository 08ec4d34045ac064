package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Wrap them with fmt.Errorf("%w: ...") or NewDomainError
// so callers can classify failures with errors.Is.
var (
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrDecryption      = fmt.Errorf("decryption failed")
	ErrEncryption      = fmt.Errorf("encryption operation failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
	ErrTransportClosed = fmt.Errorf("transport closed")
	ErrAlreadyStarted  = fmt.Errorf("already started")

	// Upstream resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("circuit open")
	ErrMalformedReply  = fmt.Errorf("malformed upstream reply")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Search.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient upstream error that may
// succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderError)
}

// ErrorCode is a machine-parseable error category for log fields and alerting.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeProviderError   ErrorCode = "PROVIDER_ERROR"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeDecryption      ErrorCode = "DECRYPTION"
	CodeEncryption      ErrorCode = "ENCRYPTION"
	CodeToolFailure     ErrorCode = "TOOL_FAILURE"
	CodeTransportClosed ErrorCode = "TRANSPORT_CLOSED"
	CodeAlreadyStarted  ErrorCode = "ALREADY_STARTED"
	CodeContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"
	CodeMalformedReply  ErrorCode = "MALFORMED_REPLY"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// More specific sentinels are checked before category sentinels in ErrorCodeOf.
var errorCodeMap = map[error]ErrorCode{
	ErrTimeout:         CodeTimeout,
	ErrInvalidInput:    CodeInvalidInput,
	ErrProviderError:   CodeProviderError,
	ErrConfigLoad:      CodeConfigLoad,
	ErrDecryption:      CodeDecryption,
	ErrEncryption:      CodeEncryption,
	ErrToolFailure:     CodeToolFailure,
	ErrTransportClosed: CodeTransportClosed,
	ErrAlreadyStarted:  CodeAlreadyStarted,
	ErrContextOverflow: CodeContextOverflow,
	ErrRateLimit:       CodeRateLimit,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrCircuitOpen:     CodeCircuitOpen,
	ErrMalformedReply:  CodeMalformedReply,
}

// errorCodeOrder fixes the errors.Is walk order so wrapped chains that
// contain several sentinels resolve deterministically.
var errorCodeOrder = []error{
	ErrCircuitOpen,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrContextOverflow,
	ErrMalformedReply,
	ErrConfigLoad,
	ErrDecryption,
	ErrEncryption,
	ErrToolFailure,
	ErrTransportClosed,
	ErrAlreadyStarted,
	ErrTimeout,
	ErrInvalidInput,
	ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
