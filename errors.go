package handson

import "errors"

var (
	// ErrInvalidCredentials is the single outcome of every credential
	// rejection: unknown user, inactive account, or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserNotFound is returned by UserStore lookups that match nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenIssue wraps a signing failure during login.
	ErrTokenIssue = errors.New("token issuance failed")
	// ErrPasswordMismatch is returned when the confirmation differs from the password.
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrUsernameTaken is returned when the username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already exists")
	// ErrInvalidRegistration is returned when a required registration field is blank.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrRegistrationFailed is returned when the store did not produce a usable id.
	ErrRegistrationFailed = errors.New("user registration failed")
	// ErrEngineNotReady is returned when a required dependency is missing.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrUserStoreRequired is returned by Build when no UserStore was supplied.
	ErrUserStoreRequired = errors.New("user store required")
)

// IsRegistrationRejection reports whether err is an expected registration
// outcome rather than an infrastructure fault.
func IsRegistrationRejection(err error) bool {
	return errors.Is(err, ErrPasswordMismatch) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrInvalidRegistration) ||
		errors.Is(err, ErrRegistrationFailed)
}
