package memory

import "fmt"

// ReferenceSnapshotMax is the largest known length Reference requests are
// served as snapshots. Anything larger (or of unknown length) stays a live
// reference to avoid copying memory nobody may ever touch. The value
// balances the round trip cost of re-reads against local footprint; 64KB
// keeps a whole typical structure hot after one request.
const ReferenceSnapshotMax = 0x10000

// View is a readable window of target memory. There are exactly two
// implementations: a snapshot owning an immutable copy taken at read time,
// and a live reference that fetches the current bytes on every call. Which
// one a Reference request yields is decided by length at construction, see
// ReferenceSnapshotMax.
type View interface {
	// ReadInto fills out with the bytes at offset within the window.
	ReadInto(offset uint64, out []byte) error

	// Reference wraps an absolute address into a new view, length < 0
	// meaning unknown.
	Reference(addr uint64, length int) (View, error)

	// ReadRemote snapshots length bytes at an absolute address.
	ReadRemote(addr uint64, length int) (View, error)
}

// snapshotView owns a copy of target memory. Reads are local and bounds
// checked; nested reference requests go back through the handle.
type snapshotView struct {
	h   *Handle
	buf []byte
}

func (v *snapshotView) ReadInto(offset uint64, out []byte) error {
	if offset > uint64(len(v.buf)) || uint64(len(out)) > uint64(len(v.buf))-offset {
		return fmt.Errorf("%w: %d bytes at %#x of a %d byte snapshot", ErrOutOfBounds, len(out), offset, len(v.buf))
	}
	copy(out, v.buf[offset:])
	return nil
}

func (v *snapshotView) Reference(addr uint64, length int) (View, error) {
	return v.h.ReferenceMemory(addr, length)
}

func (v *snapshotView) ReadRemote(addr uint64, length int) (View, error) {
	return v.h.ReadMemory([]uint64{addr}, length)
}

// liveView remembers only an address. Every read goes through the handle,
// so two reads of the same offset may observe different bytes.
type liveView struct {
	h    *Handle
	addr uint64
}

func (v *liveView) ReadInto(offset uint64, out []byte) error {
	return v.h.ReadSlice(Absolute, []uint64{v.addr + offset}, out)
}

func (v *liveView) Reference(addr uint64, length int) (View, error) {
	return v.h.ReferenceMemory(addr, length)
}

func (v *liveView) ReadRemote(addr uint64, length int) (View, error) {
	return v.h.ReadMemory([]uint64{addr}, length)
}
