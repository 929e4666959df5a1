package memory

import (
	"math"

	"github.com/krdx/remotemem/driver"
)

// Module names a relocatable region of the target process. Offsets handed
// to the read operations are relative to the module's base address.
type Module int

const (
	// Absolute skips base translation entirely: the first offset of a
	// chain is treated as a fully qualified address.
	Absolute Module = iota

	Client
	Engine
	SchemaSystem
)

// absoluteInfo is the sentinel table entry for Absolute: base zero,
// unbounded size, so every address passes the bounds conversion.
var absoluteInfo = driver.ModuleInfo{BaseAddress: 0, Size: math.MaxUint64}

func (m Module) String() string {
	switch m {
	case Absolute:
		return "absolute"
	case Client:
		return "client"
	case Engine:
		return "engine"
	case SchemaSystem:
		return "schemasystem"
	}
	return "invalid"
}

// ModuleFromName resolves the name used by the command line tools back
// into a Module.
func ModuleFromName(name string) (Module, bool) {
	switch name {
	case "absolute":
		return Absolute, true
	case "client":
		return Client, true
	case "engine":
		return Engine, true
	case "schemasystem":
		return SchemaSystem, true
	}
	return 0, false
}

func (m Module) info(target *driver.TargetInfo) (driver.ModuleInfo, bool) {
	switch m {
	case Absolute:
		return absoluteInfo, true
	case Client:
		return target.Client, true
	case Engine:
		return target.Engine, true
	case SchemaSystem:
		return target.SchemaSystem, true
	}
	return driver.ModuleInfo{}, false
}
