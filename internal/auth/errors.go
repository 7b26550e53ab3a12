package auth

import "errors"

var (
	ErrInvalidToken    = errors.New("invalid identity token")
	ErrMissingIdentity = errors.New("token carries no user identity")
)
