package driver

import (
	"io"

	"github.com/krdx/remotemem/pattern"
)

// ModuleInfo locates one image mapped into the target process.
type ModuleInfo struct {
	BaseAddress uint64
	Size        uint64
}

// Contains reports whether addr lies within the module image.
func (m ModuleInfo) Contains(addr uint64) bool {
	return addr >= m.BaseAddress && addr < m.BaseAddress+m.Size
}

// TargetInfo is the session establishment response: the target process id
// plus the location of every module the access layer can address. The table
// is captured once when the service attaches and stays fixed afterwards.
type TargetInfo struct {
	ProcessID    uint32
	Client       ModuleInfo
	Engine       ModuleInfo
	SchemaSystem ModuleInfo
}

// Driver is the privileged request/response channel into the target
// process. Every method blocks until the service answers; implementations
// serialize concurrent requests so callers may share one Driver across
// goroutines.
type Driver interface {
	io.Closer

	// TargetInfo queries the process id and module table of the target the
	// service is attached to.
	TargetInfo() (TargetInfo, error)

	// ToggleProtection asks the service to hide the inspecting process from
	// the target's own handle enumeration.
	ToggleProtection(enabled bool) error

	// ReadChain fills out by walking offsets inside the target: every
	// element but the last is read as a pointer whose value becomes the
	// next base, the last is added to the final base and len(out) bytes
	// are copied from there. A single offset is a plain range read.
	ReadChain(pid uint32, offsets []uint64, out []byte) error

	// FindPattern scans [base, base+size) of the target for pat and
	// returns the absolute address of the first hit. A miss is reported
	// through found, not through err.
	FindPattern(pid uint32, base, size uint64, pat *pattern.Pattern) (addr uint64, found bool, err error)
}
