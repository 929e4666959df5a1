package schema

import (
	"encoding/binary"
	"unsafe"

	"github.com/krdx/remotemem/memory"
)

// Field defers the read of one flat value until Get is called. Over a
// snapshot view Get is a local copy; over a live view every Get re-reads
// the target, so repeated accesses observe changing bytes.
type Field[T any] struct {
	view   memory.View
	offset uint64
}

func (f *Field[T]) BindValue(view memory.View, offset uint64) error {
	f.view = view
	f.offset = offset
	return nil
}

func (f *Field[T]) BoundSize() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// Get reads the value out of the backing view.
func (f Field[T]) Get() (T, error) {
	var v T
	if f.view == nil {
		return v, ErrUnbound
	}
	out := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	if err := f.view.ReadInto(f.offset, out); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Ptr is a 64 bit remote pointer to a T. Decoding binds it to the view;
// the pointer value itself is fetched on access.
type Ptr[T any] struct {
	view   memory.View
	offset uint64
}

func (p *Ptr[T]) BindValue(view memory.View, offset uint64) error {
	p.view = view
	p.offset = offset
	return nil
}

func (p *Ptr[T]) BoundSize() int {
	return 8
}

// Address reads the current pointer value.
func (p Ptr[T]) Address() (uint64, error) {
	if p.view == nil {
		return 0, ErrUnbound
	}
	var raw [8]byte
	if err := p.view.ReadInto(p.offset, raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw[:]), nil
}

// Read follows the pointer and decodes a T at its destination. Known size
// destinations small enough end up snapshot backed, everything else stays
// a live reference; see memory.ReferenceSnapshotMax.
func (p Ptr[T]) Read() (T, error) {
	var zero T
	addr, err := p.Address()
	if err != nil {
		return zero, err
	}
	if addr == 0 {
		return zero, ErrNilPointer
	}
	length := -1
	if size, ok := SizeOf[T](); ok {
		length = size
	}
	view, err := p.view.Reference(addr, length)
	if err != nil {
		return zero, err
	}
	return Decode[T](view, 0)
}
