package driver

import "errors"

var (
	ErrRequestFailed = errors.New("driver request failed")
	ErrClosed        = errors.New("driver closed")
)
