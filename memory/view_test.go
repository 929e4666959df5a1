package memory

import (
	"errors"
	"testing"
)

func TestReferenceThreshold(t *testing.T) {
	h, _ := newTestHandle(t)

	v, err := h.ReferenceMemory(heapBase, ReferenceSnapshotMax)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}
	if _, ok := v.(*snapshotView); !ok {
		t.Errorf("reference of %d bytes is %T, want snapshot", ReferenceSnapshotMax, v)
	}

	v, err = h.ReferenceMemory(heapBase, ReferenceSnapshotMax+1)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}
	if _, ok := v.(*liveView); !ok {
		t.Errorf("reference of %d bytes is %T, want live", ReferenceSnapshotMax+1, v)
	}

	v, err = h.ReferenceMemory(heapBase, -1)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}
	if _, ok := v.(*liveView); !ok {
		t.Errorf("reference of unknown length is %T, want live", v)
	}
}

func TestSnapshotReadsAreLocal(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(heapBase, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	v, err := h.ReadMemory([]uint64{heapBase}, 8)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	requests := len(target.Chains)

	// The snapshot keeps serving the captured bytes even after the target
	// changes, without further driver traffic.
	target.SetBytes(heapBase, []byte{9, 9, 9, 9, 9, 9, 9, 9})
	out := make([]byte, 4)
	if err := v.ReadInto(2, out); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out[0] != 3 || out[3] != 6 {
		t.Errorf("ReadInto = %v, want the captured bytes", out)
	}
	if len(target.Chains) != requests {
		t.Errorf("snapshot read issued %d extra requests", len(target.Chains)-requests)
	}
}

func TestSnapshotOutOfBounds(t *testing.T) {
	h, _ := newTestHandle(t)

	v, err := h.ReadMemory([]uint64{heapBase}, 16)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if err := v.ReadInto(8, make([]byte, 16)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("ReadInto past the end = %v, want ErrOutOfBounds", err)
	}
	if err := v.ReadInto(17, nil); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("ReadInto past the buffer = %v, want ErrOutOfBounds", err)
	}
	if err := v.ReadInto(16, nil); err != nil {
		t.Errorf("empty read at the end = %v, want nil", err)
	}
}

func TestReadRemoteSnapshots(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetU64(heapBase, 0x1122334455667788)

	parent, err := h.ReferenceMemory(heapBase+0x100, -1)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}
	v, err := parent.ReadRemote(heapBase, 8)
	if err != nil {
		t.Fatalf("ReadRemote: %v", err)
	}
	if _, ok := v.(*snapshotView); !ok {
		t.Fatalf("ReadRemote returned %T, want snapshot", v)
	}
	out := make([]byte, 8)
	if err := v.ReadInto(0, out); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out[0] != 0x88 || out[7] != 0x11 {
		t.Errorf("ReadInto = %#x, want the little endian value bytes", out)
	}
}

func TestLiveReadsAreCurrent(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetU32(heapBase+0x10, 1)

	v, err := h.ReferenceMemory(heapBase, -1)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}

	out := make([]byte, 4)
	if err := v.ReadInto(0x10, out); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out[0] != 1 {
		t.Errorf("first read = %v, want 1", out[0])
	}

	target.SetU32(heapBase+0x10, 2)
	if err := v.ReadInto(0x10, out); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out[0] != 2 {
		t.Errorf("second read = %v, want the updated bytes", out[0])
	}
}

func TestDroppedHandle(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(heapBase, make([]byte, 32))

	snap, err := h.ReadMemory([]uint64{heapBase}, 32)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	live, err := h.ReferenceMemory(heapBase, -1)
	if err != nil {
		t.Fatalf("ReferenceMemory: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !target.Closed {
		t.Error("Close did not release the driver")
	}

	// The snapshot still owns its bytes.
	if err := snap.ReadInto(0, make([]byte, 8)); err != nil {
		t.Errorf("snapshot ReadInto after close = %v, want nil", err)
	}
	// Everything that needs the session reports the drop.
	if _, err := snap.Reference(heapBase, -1); !errors.Is(err, ErrHandleDropped) {
		t.Errorf("snapshot Reference after close = %v, want ErrHandleDropped", err)
	}
	if err := live.ReadInto(0, make([]byte, 8)); !errors.Is(err, ErrHandleDropped) {
		t.Errorf("live ReadInto after close = %v, want ErrHandleDropped", err)
	}
	if err := h.ReadSlice(Client, []uint64{0}, make([]byte, 4)); !errors.Is(err, ErrHandleDropped) {
		t.Errorf("ReadSlice after close = %v, want ErrHandleDropped", err)
	}
	if _, _, err := h.FindPattern(Client, nil); !errors.Is(err, ErrHandleDropped) {
		t.Errorf("FindPattern after close = %v, want ErrHandleDropped", err)
	}
}
