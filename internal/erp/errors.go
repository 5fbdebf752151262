package erp

import "fmt"

// ErrorKind classifies a failed ERP exchange.
type ErrorKind string

const (
	ErrorKindAuthFailed ErrorKind = "auth_failed"
	ErrorKindRejected   ErrorKind = "rejected"
	ErrorKindTransport  ErrorKind = "transport"
)

// DispatchError is returned by every Client call that did not succeed.
type DispatchError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("erp %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("erp %s: %s", e.Kind, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func authFailed(message string, status int, err error) *DispatchError {
	return &DispatchError{Kind: ErrorKindAuthFailed, Message: message, StatusCode: status, Err: err}
}

func rejected(message string, status int) *DispatchError {
	return &DispatchError{Kind: ErrorKindRejected, Message: message, StatusCode: status}
}

func transport(message string, err error) *DispatchError {
	return &DispatchError{Kind: ErrorKindTransport, Message: message, Err: err}
}
