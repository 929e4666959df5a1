// Package memory is the typed access layer over a driver channel: it
// resolves module relative offset chains, fetches bytes from the target
// process and exposes them as views and plain values. It never writes to
// the target and performs no caching beyond the snapshot views the caller
// asks for.
package memory

import (
	"fmt"
	"slices"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/krdx/remotemem/driver"
	"github.com/krdx/remotemem/pattern"
)

// stringReadChunk is the initial guess and the growth increment for
// ReadString when no better length hint is available.
const stringReadChunk = 8

// Handle is the attachment session: the single entry point for reads from
// the target process. It owns the driver channel and the module table and
// is safe to share across goroutines. Views created from it keep only a
// back reference; once Close has been called every operation issued
// through them fails with ErrHandleDropped.
type Handle struct {
	drv    driver.Driver
	target driver.TargetInfo
	log    *zap.SugaredLogger
	closed atomic.Bool
}

// Attach establishes the session. The protection toggle is issued first so
// the inspecting process is hidden before anything touches the target; a
// failure of either request is fatal and no partially initialized handle
// is ever returned.
func Attach(drv driver.Driver, log *zap.SugaredLogger) (*Handle, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := drv.ToggleProtection(true); err != nil {
		return nil, fmt.Errorf("toggle protection: %w", err)
	}
	target, err := drv.TargetInfo()
	if err != nil {
		return nil, fmt.Errorf("query target modules: %w", err)
	}

	log.Debugf("attached to process %d", target.ProcessID)
	log.Debugf("  client located at %#x (%#x bytes)", target.Client.BaseAddress, target.Client.Size)
	log.Debugf("  engine located at %#x (%#x bytes)", target.Engine.BaseAddress, target.Engine.Size)
	log.Debugf("  schemasystem located at %#x (%#x bytes)", target.SchemaSystem.BaseAddress, target.SchemaSystem.Size)

	return &Handle{drv: drv, target: target, log: log}, nil
}

// Close tears the session down. Outstanding views stay allocated but every
// further operation through them reports ErrHandleDropped.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.drv.Close()
}

// use upgrades a back reference for the duration of one operation.
func (h *Handle) use() error {
	if h == nil || h.closed.Load() {
		return ErrHandleDropped
	}
	return nil
}

// ProcessID returns the target process id captured at attach time.
func (h *Handle) ProcessID() uint32 {
	return h.target.ProcessID
}

// Modules returns a copy of the immutable module table.
func (h *Handle) Modules() driver.TargetInfo {
	return h.target
}

// Protect re-issues the protection toggle. Attach already does this once;
// the request is not verified beyond its own success.
func (h *Handle) Protect() error {
	if err := h.use(); err != nil {
		return err
	}
	return h.drv.ToggleProtection(true)
}

// MemoryAddress resolves a module relative offset into an absolute address.
func (h *Handle) MemoryAddress(m Module, offset uint64) (uint64, error) {
	info, ok := m.info(&h.target)
	if !ok {
		return 0, ErrInvalidModule
	}
	return info.BaseAddress + offset, nil
}

// ModuleOffset converts an absolute address back into an offset relative
// to the module base, typically to make a scan hit relocatable across
// restarts of the target. ok is false when the module is unknown or the
// address lies outside its image.
func (h *Handle) ModuleOffset(m Module, addr uint64) (uint64, bool) {
	info, valid := m.info(&h.target)
	if !valid || !info.Contains(addr) {
		return 0, false
	}
	return addr - info.BaseAddress, true
}

// ReadSlice fills out with the bytes at the end of the offset chain. Every
// chain element but the last is dereferenced as a pointer, the last is an
// additive offset; a chain of length one is a plain range read at the
// module relative address.
func (h *Handle) ReadSlice(m Module, offsets []uint64, out []byte) error {
	if err := h.use(); err != nil {
		return err
	}
	if len(offsets) == 0 {
		return ErrEmptyChain
	}
	info, ok := m.info(&h.target)
	if !ok {
		return ErrInvalidModule
	}
	chain := slices.Clone(offsets)
	chain[0] += info.BaseAddress
	if err := h.drv.ReadChain(h.target.ProcessID, chain, out); err != nil {
		return fmt.Errorf("read %d bytes at %v+%#x: %w", len(out), m, offsets[0], err)
	}
	return nil
}

// ReadString reads a null terminated UTF-8 string of unknown length.
// sizeHint seeds the first read; every miss grows the buffer by 8 bytes
// and retries, without an upper bound. A remote value that is never
// terminated keeps this call looping, so callers that cannot trust the
// target must impose their own cap or timeout.
func (h *Handle) ReadString(m Module, offsets []uint64, sizeHint int) (string, error) {
	size := sizeHint
	if size <= 0 {
		size = stringReadChunk
	}
	for {
		buf := make([]byte, size)
		if err := h.ReadSlice(m, offsets, buf); err != nil {
			return "", fmt.Errorf("read string: %w", err)
		}
		if i := slices.Index(buf, 0); i >= 0 {
			if !utf8.Valid(buf[:i]) {
				return "", ErrInvalidString
			}
			return string(buf[:i]), nil
		}
		size += stringReadChunk
	}
}

// ChainAddress resolves the chain down to the address its final offset
// points at: all elements but the last are dereferenced exactly like in
// ReadSlice, the last is added without being dereferenced. A chain of
// length one resolves without touching the target at all.
func (h *Handle) ChainAddress(m Module, offsets []uint64) (uint64, error) {
	if err := h.use(); err != nil {
		return 0, err
	}
	if len(offsets) == 0 {
		return 0, ErrEmptyChain
	}
	if len(offsets) == 1 {
		return h.MemoryAddress(m, offsets[0])
	}
	base, err := Read[uint64](h, m, offsets[:len(offsets)-1]...)
	if err != nil {
		return 0, err
	}
	return base + offsets[len(offsets)-1], nil
}

// ReadMemory copies size bytes located by the (absolute) offset chain into
// a snapshot view. The returned view is immutable and self contained;
// nested reference requests still require the handle to be alive.
func (h *Handle) ReadMemory(offsets []uint64, size int) (View, error) {
	buf := make([]byte, size)
	if err := h.ReadSlice(Absolute, offsets, buf); err != nil {
		return nil, err
	}
	return &snapshotView{h: h, buf: buf}, nil
}

// ReferenceMemory wraps addr into a view without reading it. Known lengths
// of at most ReferenceSnapshotMax bytes are materialized as snapshots
// instead, since a single copy is cheaper than re-fetching hot data; pass
// a negative length when the size is unknown to force a live reference.
func (h *Handle) ReferenceMemory(addr uint64, length int) (View, error) {
	if err := h.use(); err != nil {
		return nil, err
	}
	if length >= 0 && length <= ReferenceSnapshotMax {
		return h.ReadMemory([]uint64{addr}, length)
	}
	return &liveView{h: h, addr: addr}, nil
}

// FindPattern scans the module image for pat and reports the first hit as
// a module relative offset. A miss is not an error.
func (h *Handle) FindPattern(m Module, pat *pattern.Pattern) (uint64, bool, error) {
	if err := h.use(); err != nil {
		return 0, false, err
	}
	info, ok := m.info(&h.target)
	if !ok {
		return 0, false, ErrInvalidModule
	}
	addr, found, err := h.drv.FindPattern(h.target.ProcessID, info.BaseAddress, info.Size, pat)
	if err != nil {
		return 0, false, fmt.Errorf("scan %v for %v: %w", m, pat, err)
	}
	if !found {
		return 0, false, nil
	}
	return addr - info.BaseAddress, true, nil
}
