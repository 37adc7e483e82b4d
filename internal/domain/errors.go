package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrItemExchanged     = errors.New("item already exchanged")
	ErrEmptyPatch        = errors.New("empty patch")
	ErrSelfOffer         = errors.New("sender and receiver must differ")
)
