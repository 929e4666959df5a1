package schema

import "errors"

var (
	ErrUnsized    = errors.New("schema value has no fixed size")
	ErrUnbound    = errors.New("schema value is not bound to a view")
	ErrNilPointer = errors.New("nil remote pointer")
)
