package selfservice

import "errors"

var (
	ErrInvalidUser       = errors.New("invalid remote user")
	ErrInvalidSlot       = errors.New("invalid slot id")
	ErrLoaderNotFound    = errors.New("unable to locate loader for slot")
	ErrInvalidCredential = errors.New("invalid loader credential")
)
