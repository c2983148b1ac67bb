package service

import "errors"

// Rejections. These are the outcomes a caller may act on; handlers map them
// to 4xx responses. Anything else returned by the service is an
// infrastructure fault.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRole         = errors.New("invalid role")
	ErrWeakPassword        = errors.New("password does not meet the strength policy")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrSamePassword        = errors.New("new password must differ from the current password")
	ErrUserNotFound        = errors.New("user not found")
)

var rejections = []error{
	ErrInvalidInput,
	ErrInvalidRole,
	ErrWeakPassword,
	ErrEmailTaken,
	ErrInvalidCredentials,
	ErrInvalidRefreshToken,
	ErrInvalidResetToken,
	ErrSamePassword,
	ErrUserNotFound,
}

// ErrNotificationFailed marks a fault in the mail transport. It is not a
// rejection: the reset request was valid but could not be delivered.
var ErrNotificationFailed = errors.New("reset notice could not be sent")

// IsRejection reports whether err is an ordinary rejection rather than an
// infrastructure fault.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
