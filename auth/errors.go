package auth

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrNoToken            = errors.New("no access token")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrExpiredToken       = errors.New("access token expired")
	ErrInvalidSigningAlg  = errors.New("unexpected signing method")
)
