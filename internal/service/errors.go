package service

import "errors"

var (
	// ErrForbidden: no accepted pairing covers the requester for this action.
	ErrForbidden       = errors.New("forbidden: no accepted connection between participants")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
