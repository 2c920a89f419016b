package authd

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the generic denial for password login. It
	// deliberately covers unknown accounts, wrong passwords, and
	// password login against OTP-only accounts so responses never reveal
	// whether an email is registered.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked signals an active lockout window. The concrete
	// error is a *LockedError carrying the retry-after hint.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountNotFound is returned by OTP request for unknown emails.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountNotActive covers pending and suspended accounts.
	ErrAccountNotActive = errors.New("account not active")

	// ErrDuplicateRegistration is returned when the email is already
	// registered to a live account.
	ErrDuplicateRegistration = errors.New("email already registered")

	// ErrPasswordPolicy is returned when a password fails hashing policy.
	ErrPasswordPolicy = errors.New("password does not meet policy")

	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current")

	ErrOTPInvalid   = errors.New("otp invalid")
	ErrOTPExpired   = errors.New("otp expired")
	ErrOTPExhausted = errors.New("otp attempts exhausted")

	// ErrDeliveryFailed indicates the code was stored but could not be
	// sent. The client may retry the request.
	ErrDeliveryFailed = errors.New("otp delivery failed")

	// ErrTokenInvalid covers malformed or wrongly signed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when the access token itself has aged
	// out; the session may still be refreshable.
	ErrTokenExpired = errors.New("access token expired")

	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuse is returned when a rotated-out refresh token is
	// presented again. The session is revoked as a side effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrBackendUnavailable is the fail-closed mapping of any Redis
	// failure on an authentication path.
	ErrBackendUnavailable = errors.New("auth backend unavailable")

	// ErrServiceNotReady is returned when the builder did not wire a
	// required dependency.
	ErrServiceNotReady = errors.New("service not ready")

	// ErrInvalidInput covers empty or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUserNotFound must be returned by UserStore lookups when no
	// live (non-deleted) user matches.
	ErrStoreUserNotFound = errors.New("user store: user not found")
	// ErrStoreDuplicateEmail must be returned by UserStore.Create when
	// the email is taken by a live user.
	ErrStoreDuplicateEmail = errors.New("user store: duplicate email")
)

// LockedError reports an active lockout together with the remaining
// duration. It unwraps to ErrAccountLocked so errors.Is keeps working.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}
