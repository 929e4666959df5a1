package memory

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/krdx/remotemem/driver"
	"github.com/krdx/remotemem/internal/drivertest"
	"github.com/krdx/remotemem/pattern"
)

const (
	regionBase = uint64(0x10000000)
	regionSize = 0x200000

	clientBase = regionBase
	clientSize = uint64(0x10000)
	engineBase = regionBase + 0x20000
	engineSize = uint64(0x8000)

	// scratch addresses outside any module but inside the mapped region.
	heapBase = regionBase + 0x100000
)

func testInfo() driver.TargetInfo {
	return driver.TargetInfo{
		ProcessID:    4242,
		Client:       driver.ModuleInfo{BaseAddress: clientBase, Size: clientSize},
		Engine:       driver.ModuleInfo{BaseAddress: engineBase, Size: engineSize},
		SchemaSystem: driver.ModuleInfo{BaseAddress: engineBase + 0x10000, Size: 0x4000},
	}
}

func newTestHandle(t *testing.T) (*Handle, *drivertest.Target) {
	t.Helper()
	target := drivertest.New(testInfo(), regionBase, regionSize)
	h, err := Attach(target, nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, target
}

func TestAttachTogglesProtection(t *testing.T) {
	_, target := newTestHandle(t)
	if diff := cmp.Diff([]bool{true}, target.Toggles); diff != "" {
		t.Errorf("protection toggles mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachFailureIsFatal(t *testing.T) {
	target := drivertest.New(testInfo(), regionBase, regionSize)
	target.FailToggle = errors.New("rejected")
	if _, err := Attach(target, nil); err == nil {
		t.Fatal("Attach succeeded with a failing protection toggle")
	}

	target = drivertest.New(testInfo(), regionBase, regionSize)
	target.FailInfo = errors.New("module info unavailable")
	if _, err := Attach(target, nil); err == nil {
		t.Fatal("Attach succeeded without module info")
	}
}

func TestReadResolvesModuleBase(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetU32(clientBase+0x40, 0xdeadbeef)

	v, err := Read[uint32](h, Client, 0x40)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 0xdeadbeef {
		t.Errorf("Read = %#x, want 0xdeadbeef", v)
	}
	if len(target.Reads) != 1 || target.Reads[0].Addr != clientBase+0x40 {
		t.Errorf("final read = %+v, want addr %#x", target.Reads, clientBase+0x40)
	}
}

func TestOffsetChainResolution(t *testing.T) {
	h, target := newTestHandle(t)

	// client+0xA0 -> p1, p1+0x18 -> p2, value at p2+0x08.
	const a, b, c = 0xA0, 0x18, 0x08
	p1 := heapBase + 0x1000
	p2 := heapBase + 0x2000
	target.SetU64(clientBase+a, p1)
	target.SetU64(p1+b, p2)
	target.SetU64(p2+c, 777)

	v, err := Read[uint64](h, Client, a, b, c)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 777 {
		t.Errorf("Read = %d, want 777", v)
	}
	if diff := cmp.Diff([]uint64{clientBase + a, p1 + b}, target.Derefs); diff != "" {
		t.Errorf("dereferenced addresses mismatch (-want +got):\n%s", diff)
	}
	want := []drivertest.Read{{Addr: p2 + c, Len: 8}}
	if diff := cmp.Diff(want, target.Reads); diff != "" {
		t.Errorf("final read mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSliceErrors(t *testing.T) {
	h, _ := newTestHandle(t)

	if err := h.ReadSlice(Client, nil, make([]byte, 4)); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("empty chain error = %v, want ErrEmptyChain", err)
	}
	if err := h.ReadSlice(Module(99), []uint64{0}, make([]byte, 4)); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("invalid module error = %v, want ErrInvalidModule", err)
	}
	// Dead page: far outside the mapped region.
	if err := h.ReadSlice(Absolute, []uint64{0x10}, make([]byte, 4)); err == nil {
		t.Error("read of unmapped page succeeded")
	}
}

func TestReadVec(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(engineBase+0x10, []byte{1, 0, 2, 0, 3, 0})

	v, err := ReadVec[uint16](h, Engine, []uint64{0x10}, 3)
	if err != nil {
		t.Fatalf("ReadVec: %v", err)
	}
	if diff := cmp.Diff([]uint16{1, 2, 3}, v); diff != "" {
		t.Errorf("ReadVec mismatch (-want +got):\n%s", diff)
	}
}

func TestReadStringSingleRoundTrip(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(clientBase+0x100, []byte("abc\x00"))

	s, err := h.ReadString(Client, []uint64{0x100}, 0)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "abc" {
		t.Errorf("ReadString = %q, want %q", s, "abc")
	}
	// The 8 byte initial guess already contains the terminator.
	if len(target.Chains) != 1 {
		t.Errorf("ReadString issued %d reads, want 1", len(target.Chains))
	}
}

func TestReadStringGrows(t *testing.T) {
	h, target := newTestHandle(t)
	const long = "a string longer than"
	target.SetBytes(clientBase+0x100, append([]byte(long), 0))

	s, err := h.ReadString(Client, []uint64{0x100}, 0)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != long {
		t.Errorf("ReadString = %q, want %q", s, long)
	}
	// 20 content bytes: guesses of 8, 16 and 24 bytes.
	if len(target.Chains) != 3 {
		t.Errorf("ReadString issued %d reads, want 3", len(target.Chains))
	}
}

func TestReadStringInvalidEncoding(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(clientBase+0x100, []byte{0xff, 0xfe, 0x00})

	if _, err := h.ReadString(Client, []uint64{0x100}, 0); !errors.Is(err, ErrInvalidString) {
		t.Errorf("ReadString error = %v, want ErrInvalidString", err)
	}
}

func TestChainAddress(t *testing.T) {
	h, target := newTestHandle(t)

	// A single element chain resolves without touching the target.
	addr, err := h.ChainAddress(Client, []uint64{0x30})
	if err != nil {
		t.Fatalf("ChainAddress: %v", err)
	}
	if addr != clientBase+0x30 {
		t.Errorf("ChainAddress = %#x, want %#x", addr, clientBase+0x30)
	}
	if len(target.Chains) != 0 {
		t.Errorf("single element chain issued %d reads, want 0", len(target.Chains))
	}

	p1 := heapBase + 0x3000
	target.SetU64(clientBase+0x30, p1)
	addr, err = h.ChainAddress(Client, []uint64{0x30, 0x20})
	if err != nil {
		t.Fatalf("ChainAddress: %v", err)
	}
	if addr != p1+0x20 {
		t.Errorf("ChainAddress = %#x, want %#x", addr, p1+0x20)
	}
}

func TestModuleOffset(t *testing.T) {
	h, _ := newTestHandle(t)

	if off, ok := h.ModuleOffset(Client, clientBase+0x123); !ok || off != 0x123 {
		t.Errorf("ModuleOffset = %#x, %v, want 0x123, true", off, ok)
	}
	if _, ok := h.ModuleOffset(Client, clientBase+clientSize); ok {
		t.Error("ModuleOffset accepted an address just past the module")
	}
	if _, ok := h.ModuleOffset(Client, clientBase-1); ok {
		t.Error("ModuleOffset accepted an address before the module")
	}
	if _, ok := h.ModuleOffset(Module(99), clientBase); ok {
		t.Error("ModuleOffset accepted an invalid module")
	}
}

func TestFindPattern(t *testing.T) {
	h, target := newTestHandle(t)
	target.SetBytes(clientBase+0x1234, []byte{0x48, 0x8B, 0x05, 0x11, 0x22})

	offset, found, err := h.FindPattern(Client, pattern.MustParse("48 8B ?? 11 22"))
	if err != nil {
		t.Fatalf("FindPattern: %v", err)
	}
	if !found || offset != 0x1234 {
		t.Errorf("FindPattern = %#x, %v, want 0x1234, true", offset, found)
	}
	base, err := h.MemoryAddress(Client, offset)
	if err != nil {
		t.Fatalf("MemoryAddress: %v", err)
	}
	if _, ok := h.ModuleOffset(Client, base); !ok {
		t.Errorf("pattern hit %#x resolves outside the module", base)
	}
}

func TestFindPatternMissIsNotAnError(t *testing.T) {
	h, _ := newTestHandle(t)

	offset, found, err := h.FindPattern(Engine, pattern.MustParse("DE AD BE EF 13 37"))
	if err != nil {
		t.Fatalf("FindPattern: %v", err)
	}
	if found || offset != 0 {
		t.Errorf("FindPattern = %#x, %v, want miss", offset, found)
	}
}
