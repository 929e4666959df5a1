package schema

import (
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"sync"
	"unsafe"

	"github.com/modern-go/reflect2"
	"golang.org/x/exp/constraints"

	"github.com/krdx/remotemem/memory"
)

type handler = func(view memory.View, offset uint64, ptr unsafe.Pointer) error

// program decodes one Go type out of a view. size and align describe the
// target layout, which tags and Binder fields may decouple from the Go
// layout; flat programs are byte for byte identical to the Go value and
// collapse into a single copy.
type program struct {
	run   handler
	size  int
	align int
	flat  bool
}

var (
	programs   sync.Map // rtype -> *program or error
	binderType = reflect.TypeOf((*Binder)(nil)).Elem()
)

func compiled(typ reflect.Type) (*program, error) {
	key := reflect2.Type2(typ).RType()
	if v, ok := programs.Load(key); ok {
		if prog, ok := v.(*program); ok {
			return prog, nil
		}
		return nil, v.(error)
	}
	prog, err := compile(typ)
	if err != nil {
		programs.Store(key, err)
		return nil, err
	}
	programs.Store(key, prog)
	return prog, nil
}

func compile(typ reflect.Type) (*program, error) {
	if reflect.PointerTo(typ).Implements(binderType) {
		size := reflect.New(typ).Interface().(Binder).BoundSize()
		run := func(view memory.View, offset uint64, ptr unsafe.Pointer) error {
			return reflect.NewAt(typ, ptr).Interface().(Binder).BindValue(view, offset)
		}
		return &program{run: run, size: size, align: 8}, nil
	}
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		size := int(typ.Size())
		return &program{run: copyHandler(size), size: size, align: size, flat: true}, nil
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return nil, fmt.Errorf("cannot decode %v: use a fixed width integer", typ)
	case reflect.Array:
		return compileArray(typ)
	case reflect.Struct:
		return compileStruct(typ)
	}
	return nil, fmt.Errorf("cannot decode %v: unsupported kind %v", typ, typ.Kind())
}

func copyHandler(size int) handler {
	return func(view memory.View, offset uint64, ptr unsafe.Pointer) error {
		return view.ReadInto(offset, unsafe.Slice((*byte)(ptr), size))
	}
}

func compileArray(typ reflect.Type) (*program, error) {
	elem, err := compile(typ.Elem())
	if err != nil {
		return nil, err
	}
	count := typ.Len()
	if elem.flat {
		size := elem.size * count
		return &program{run: copyHandler(size), size: size, align: elem.align, flat: true}, nil
	}
	goStride := typ.Elem().Size()
	stride := elem.size
	run := func(view memory.View, offset uint64, ptr unsafe.Pointer) error {
		for i := 0; i < count; i++ {
			err := elem.run(view, offset+uint64(i*stride), unsafe.Add(ptr, uintptr(i)*goStride))
			if err != nil {
				return err
			}
		}
		return nil
	}
	return &program{run: run, size: stride * count, align: elem.align}, nil
}

type fieldProgram struct {
	run   handler
	off   uint64
	goOff uintptr
}

func compileStruct(typ reflect.Type) (*program, error) {
	var (
		fields   []fieldProgram
		cursor   int
		end      int
		maxAlign = 1
		flat     = true
	)
	for field := range rangeField(typ) {
		tag := field.Tag.Get("mem")
		if tag == "-" {
			flat = false
			continue
		}
		sub, err := compile(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", typ.Name(), field.Name, err)
		}
		if tag != "" {
			off, err := strconv.ParseUint(tag, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: bad mem tag %q", typ.Name(), field.Name, tag)
			}
			cursor = int(off)
		} else {
			cursor = alignUp(cursor, sub.align)
		}
		if !sub.flat || uintptr(cursor) != field.Offset {
			flat = false
		}
		maxAlign = max(maxAlign, sub.align)
		fields = append(fields, fieldProgram{run: sub.run, off: uint64(cursor), goOff: field.Offset})
		cursor += sub.size
		end = max(end, cursor)
	}
	size := alignUp(end, maxAlign)
	if flat && size == int(typ.Size()) {
		return &program{run: copyHandler(size), size: size, align: maxAlign, flat: true}, nil
	}
	run := func(view memory.View, offset uint64, ptr unsafe.Pointer) error {
		for i := range fields {
			f := &fields[i]
			if err := f.run(view, offset+f.off, unsafe.Add(ptr, f.goOff)); err != nil {
				return err
			}
		}
		return nil
	}
	return &program{run: run, size: size, align: maxAlign}, nil
}

func alignUp[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

func rangeField(typ reflect.Type) iter.Seq[reflect.StructField] {
	return func(yield func(reflect.StructField) bool) {
		count := typ.NumField()
		for i := 0; i < count; i++ {
			if !yield(typ.Field(i)) {
				break
			}
		}
	}
}
