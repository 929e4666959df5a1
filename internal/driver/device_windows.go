//go:build windows

package driver

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"

	"github.com/krdx/remotemem/driver"
	"github.com/krdx/remotemem/pattern"
)

// DevicePath is the control device the kernel service registers.
const DevicePath = `\\.\remotemem`

// FILE_DEVICE_UNKNOWN, METHOD_BUFFERED, FILE_ANY_ACCESS. The function
// number is the wire op shifted into the driver's private range.
func ctlCode(op byte) uint32 {
	return 0x22<<16 | (0x800+uint32(op))<<2
}

// Device issues the wire requests through DeviceIoControl instead of a
// socket. Request payloads are identical to the socket transport; errors
// surface as ioctl failures rather than status frames.
type Device struct {
	mu     sync.Mutex
	h      windows.Handle
	closed bool
}

var _ driver.Driver = (*Device)(nil)

func OpenDevice(path string) (*Device, error) {
	if path == "" {
		path = DevicePath
	}
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(name, windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return nil, fmt.Errorf("open driver device %s: %w", path, err)
	}
	return &Device{h: h}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return windows.CloseHandle(d.h)
}

func (d *Device) ioctl(op byte, payload, out []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrClosed
	}

	var in, res *byte
	if len(payload) > 0 {
		in = &payload[0]
	}
	if len(out) > 0 {
		res = &out[0]
	}
	var ret uint32
	err := windows.DeviceIoControl(d.h, ctlCode(op), in, uint32(len(payload)), res, uint32(len(out)), &ret, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: ioctl %#x: %v", driver.ErrRequestFailed, op, err)
	}
	return int(ret), nil
}

func (d *Device) TargetInfo() (driver.TargetInfo, error) {
	out := make([]byte, 4+3*16)
	n, err := d.ioctl(opTargetInfo, appendTargetInfoRequest(nil), out)
	if err != nil {
		return driver.TargetInfo{}, err
	}
	return parseTargetInfo(out[:n])
}

func (d *Device) ToggleProtection(enabled bool) error {
	_, err := d.ioctl(opProtection, appendProtectionRequest(nil, enabled), nil)
	return err
}

func (d *Device) ReadChain(pid uint32, offsets []uint64, out []byte) error {
	n, err := d.ioctl(opReadChain, appendReadChainRequest(nil, pid, offsets, len(out)), out)
	if err != nil {
		return err
	}
	if n != len(out) {
		return fmt.Errorf("%w: read returned %d bytes, want %d", driver.ErrRequestFailed, n, len(out))
	}
	return nil
}

func (d *Device) FindPattern(pid uint32, base, size uint64, pat *pattern.Pattern) (uint64, bool, error) {
	out := make([]byte, 9)
	n, err := d.ioctl(opFindPattern, appendFindPatternRequest(nil, pid, base, size, pat.String()), out)
	if err != nil {
		return 0, false, err
	}
	return parseFindPattern(out[:n])
}
