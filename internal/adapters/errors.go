package adapters

import "errors"

var (
	errNilFrame   = errors.New("adapters: nil frame")
	errEmptyFrame = errors.New("adapters: empty frame bounds")
)
