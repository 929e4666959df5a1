package memory

import "unsafe"

// Read interprets the bytes at the end of the offset chain as a single
// value of type T. T must be flat: a fixed size value without Go pointers,
// laid out identically in the target.
func Read[T any](h *Handle, m Module, offsets ...uint64) (T, error) {
	var v T
	out := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	if err := h.ReadSlice(m, offsets, out); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// ReadInto fills a caller provided slice of flat values.
func ReadInto[T any](h *Handle, m Module, offsets []uint64, out []T) error {
	return h.ReadSlice(m, offsets, valueBytes(out))
}

// ReadVec allocates and fills a slice of length flat values.
func ReadVec[T any](h *Handle, m Module, offsets []uint64, length int) ([]T, error) {
	out := make([]T, length)
	if err := ReadInto(h, m, offsets, out); err != nil {
		return nil, err
	}
	return out, nil
}

func valueBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var t T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(t)))
}
