package validator

import "errors"

var (
	ErrEmptyURL   = errors.New("target URL cannot be empty")
	ErrInvalidURL = errors.New("invalid target URL")
)
