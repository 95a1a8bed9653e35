package entities

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrIdentityConflict = errors.New("telegram account is already linked to another user")
	ErrUnknownIdentity  = errors.New("unknown identity")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidBirthDate = errors.New("invalid birth date")
	ErrInvalidToken     = errors.New("invalid token")

	ErrGenerationTimeout     = errors.New("generation timed out")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	ErrMalformedResponse     = errors.New("malformed generation response")
)
