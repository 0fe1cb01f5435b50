package responder

import "fmt"

type ErrorCode string

const (
	ErrorAddressabilityUnknown ErrorCode = "ADDRESSABILITY_UNKNOWN"
	ErrorRetrievalFailed       ErrorCode = "RETRIEVAL_FAILED"
	ErrorEmptyRetrieval        ErrorCode = "EMPTY_RETRIEVAL"
	ErrorGenerationFailed      ErrorCode = "GENERATION_FAILED"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("responder: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("responder: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
