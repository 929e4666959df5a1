package pattern

import "errors"

var ErrEmptyPattern = errors.New("empty pattern")
