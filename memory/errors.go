package memory

import "errors"

var (
	ErrInvalidModule = errors.New("invalid module")
	ErrEmptyChain    = errors.New("empty offset chain")
	ErrOutOfBounds   = errors.New("invalid offset")
	ErrHandleDropped = errors.New("handle has been dropped")
	ErrInvalidString = errors.New("invalid string contents")
)
