package common

import "errors"

var (
	ErrInvalidSide       = errors.New("invalid side")
	ErrInvalidDeltaType  = errors.New("invalid delta type")
)
