// Package drivertest implements the driver contract over a fake target
// address space held in a byte slice, recording every request it serves.
// Tests use it to verify chain resolution and request traffic without a
// privileged service.
package drivertest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/krdx/remotemem/driver"
	"github.com/krdx/remotemem/pattern"
)

// Read records one final range read served by ReadChain.
type Read struct {
	Addr uint64
	Len  int
}

// Target is a fake attached process: a single mapped region starting at
// base, a fixed module table and the request log.
type Target struct {
	mu   sync.Mutex
	base uint64
	mem  []byte
	info driver.TargetInfo

	Chains  [][]uint64
	Derefs  []uint64
	Reads   []Read
	Toggles []bool
	Closed  bool

	FailToggle error
	FailInfo   error
	FailReads  error
}

var _ driver.Driver = (*Target)(nil)

func New(info driver.TargetInfo, base uint64, size int) *Target {
	return &Target{base: base, mem: make([]byte, size), info: info}
}

// SetBytes writes into the fake address space. Addresses outside the
// mapped region are a test bug.
func (t *Target) SetBytes(addr uint64, b []byte) {
	if addr < t.base || addr+uint64(len(b)) > t.base+uint64(len(t.mem)) {
		panic(fmt.Sprintf("drivertest: SetBytes outside the mapped region: %#x", addr))
	}
	copy(t.mem[addr-t.base:], b)
}

func (t *Target) SetU64(addr, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	t.SetBytes(addr, b[:])
}

func (t *Target) SetU32(addr uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	t.SetBytes(addr, b[:])
}

func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return nil
}

func (t *Target) TargetInfo() (driver.TargetInfo, error) {
	if t.FailInfo != nil {
		return driver.TargetInfo{}, t.FailInfo
	}
	return t.info, nil
}

func (t *Target) ToggleProtection(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailToggle != nil {
		return t.FailToggle
	}
	t.Toggles = append(t.Toggles, enabled)
	return nil
}

func (t *Target) ReadChain(pid uint32, offsets []uint64, out []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	chain := make([]uint64, len(offsets))
	copy(chain, offsets)
	t.Chains = append(t.Chains, chain)
	if t.FailReads != nil {
		return t.FailReads
	}

	addr := offsets[0]
	for _, off := range offsets[1:] {
		t.Derefs = append(t.Derefs, addr)
		var p [8]byte
		if err := t.readAt(addr, p[:]); err != nil {
			return err
		}
		addr = binary.LittleEndian.Uint64(p[:]) + off
	}
	t.Reads = append(t.Reads, Read{Addr: addr, Len: len(out)})
	return t.readAt(addr, out)
}

func (t *Target) FindPattern(pid uint32, base, size uint64, pat *pattern.Pattern) (uint64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lo := max(base, t.base)
	hi := t.base + uint64(len(t.mem))
	if size < hi-base {
		hi = base + size
	}
	if lo >= hi {
		return 0, false, nil
	}
	i, ok := pat.Find(t.mem[lo-t.base : hi-t.base])
	if !ok {
		return 0, false, nil
	}
	return lo + uint64(i), true, nil
}

func (t *Target) readAt(addr uint64, out []byte) error {
	if addr < t.base || uint64(len(out)) > t.base+uint64(len(t.mem))-addr {
		return fmt.Errorf("unmapped read of %d bytes at %#x", len(out), addr)
	}
	copy(out, t.mem[addr-t.base:])
	return nil
}
