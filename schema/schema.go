// Package schema decodes typed values out of memory views. Layouts are
// described by plain Go structs: flat fields are copied byte for byte,
// `mem:"0x30"` tags pin a field to an explicit offset in the target
// layout, and the Field and Ptr types bind to the backing view so every
// access yields the bytes current at that moment.
package schema

import (
	"reflect"
	"unsafe"

	"github.com/krdx/remotemem/memory"
)

// Binder is implemented by field types that attach to the backing view at
// decode time instead of copying bytes. Field and Ptr are the built in
// implementations; external packages may provide their own.
type Binder interface {
	// BindValue attaches the value to view at an absolute view offset.
	BindValue(view memory.View, offset uint64) error

	// BoundSize is the number of bytes the value occupies in the target
	// layout, which may differ from its Go size.
	BoundSize() int
}

// SizeOf returns the number of bytes a decoded T occupies in the target
// layout. ok is false when T is not decodable.
func SizeOf[T any]() (int, bool) {
	prog, err := compiled(reflect.TypeFor[T]())
	if err != nil {
		return 0, false
	}
	return prog.size, true
}

// Decode produces a T from the bytes at offset within view. Flat fields
// are copied immediately; Binder fields attach to view and read on access,
// so a T decoded over a live view stays current.
func Decode[T any](view memory.View, offset uint64) (T, error) {
	var v T
	prog, err := compiled(reflect.TypeFor[T]())
	if err != nil {
		return v, err
	}
	if err := prog.run(view, offset, unsafe.Pointer(&v)); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Read snapshots exactly SizeOf[T] bytes at the end of the (absolute)
// offset chain and decodes a fully self contained T out of the copy.
func Read[T any](h *memory.Handle, offsets ...uint64) (T, error) {
	var zero T
	size, ok := SizeOf[T]()
	if !ok {
		return zero, ErrUnsized
	}
	view, err := h.ReadMemory(offsets, size)
	if err != nil {
		return zero, err
	}
	return Decode[T](view, 0)
}

// Reference resolves the chain to its final address and decodes a T backed
// by a reference to that address: member accesses read the target's
// current bytes. Prefer this over Read for structures touched only once
// or twice, where a full copy would be wasted.
func Reference[T any](h *memory.Handle, offsets ...uint64) (T, error) {
	var zero T
	addr, err := h.ChainAddress(memory.Absolute, offsets)
	if err != nil {
		return zero, err
	}
	length := -1
	if size, ok := SizeOf[T](); ok {
		length = size
	}
	view, err := h.ReferenceMemory(addr, length)
	if err != nil {
		return zero, err
	}
	return Decode[T](view, 0)
}
