package auth

import "errors"

// Outcomes surfaced to the HTTP layer. Handlers map them to status codes with
// errors.Is; lower-level causes stay wrapped underneath for logging only.
var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal error")
	ErrInvalidToken       = errors.New("invalid token")
)

// ErrDuplicate is returned by credential stores when an insert hits a
// uniqueness constraint on username or email.
var ErrDuplicate = errors.New("unique constraint violation")

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
