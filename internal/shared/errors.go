package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote store errors
	ErrAPIRequest      = fmt.Errorf("API request failed")
	ErrInvalidResponse = fmt.Errorf("invalid API response")
	ErrTaskNotFound    = fmt.Errorf("task not found")
	ErrListNotFound    = fmt.Errorf("list not found")
	ErrWindowNotFound  = fmt.Errorf("time window not found")

	// Engine errors
	ErrMoveFailed         = fmt.Errorf("move failed")
	ErrCompensationFailed = fmt.Errorf("move compensation failed, possible duplicate at destination")
	ErrUndoConsumed       = fmt.Errorf("undo record already replayed")
	ErrStaleRollback      = fmt.Errorf("rollback skipped, task changed since snapshot")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// APIError carries the HTTP status code returned by the remote task store.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: status %d", e.Code)
	}
	return fmt.Sprintf("API error: status %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPIRequest }

// AuthError wraps credential failures (expired or revoked tokens) with detail.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return ErrNotAuthenticated.Error()
	}
	return fmt.Sprintf("%v: %s", ErrNotAuthenticated, e.Detail)
}

func (e *AuthError) Unwrap() error { return ErrNotAuthenticated }
