package powerbi

import "errors"

// Sentinel errors
var (
	// ErrAuthRequest means the device-code request failed or returned an
	// unusable body. Fatal for the run.
	ErrAuthRequest = errors.New("device code request failed")

	// ErrTokenPoll wraps a failed token poll. Polling continues unless the
	// cause is also ErrAuthorizationDeclined or ErrDeviceCodeExpired.
	ErrTokenPoll = errors.New("token poll failed")

	// ErrAuthorizationPending is the normal answer while the user has not
	// finished signing in.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrAuthorizationDeclined is a permanent denial by the user or tenant.
	ErrAuthorizationDeclined = errors.New("authorization declined")

	// ErrDeviceCodeExpired means the polling window elapsed without a token.
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrEnumeration means the workspace listing failed after all retries.
	ErrEnumeration = errors.New("workspace enumeration failed")

	// ErrScopeMismatch is returned when a token is used against an API it
	// was not issued for.
	ErrScopeMismatch = errors.New("token scope mismatch")

	// ErrReauthRequired maps 401/403 answers from the REST API.
	ErrReauthRequired = errors.New("re-authentication required")
)
