// Package driver contains the concrete transports behind the driver
// contract: a framed binary protocol spoken to the privileged service over
// a local stream socket and, on windows, the DeviceIoControl interface of
// the kernel driver. Both speak the same request encoding.
package driver

import (
	"encoding/binary"
	"fmt"

	"github.com/krdx/remotemem/driver"
)

const (
	opTargetInfo byte = iota + 1
	opProtection
	opReadChain
	opFindPattern
)

const (
	statusOK byte = iota
	statusError
)

// Requests and responses are little endian. A request is the op byte, a
// u32 payload length and the payload; a response is a status byte, a u32
// length and either the result payload or an error message.

func appendTargetInfoRequest(b []byte) []byte {
	return b
}

func appendProtectionRequest(b []byte, enabled bool) []byte {
	if enabled {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendReadChainRequest(b []byte, pid uint32, offsets []uint64, readLen int) []byte {
	b = binary.LittleEndian.AppendUint32(b, pid)
	b = binary.LittleEndian.AppendUint32(b, uint32(readLen))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(offsets)))
	for _, off := range offsets {
		b = binary.LittleEndian.AppendUint64(b, off)
	}
	return b
}

func appendFindPatternRequest(b []byte, pid uint32, base, size uint64, pat string) []byte {
	b = binary.LittleEndian.AppendUint32(b, pid)
	b = binary.LittleEndian.AppendUint64(b, base)
	b = binary.LittleEndian.AppendUint64(b, size)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(pat)))
	return append(b, pat...)
}

func parseTargetInfo(body []byte) (driver.TargetInfo, error) {
	r := wireReader{body}
	var info driver.TargetInfo
	var err error
	if info.ProcessID, err = r.u32(); err != nil {
		return driver.TargetInfo{}, err
	}
	for _, m := range []*driver.ModuleInfo{&info.Client, &info.Engine, &info.SchemaSystem} {
		if m.BaseAddress, err = r.u64(); err != nil {
			return driver.TargetInfo{}, err
		}
		if m.Size, err = r.u64(); err != nil {
			return driver.TargetInfo{}, err
		}
	}
	return info, nil
}

func parseFindPattern(body []byte) (uint64, bool, error) {
	r := wireReader{body}
	found, err := r.u8()
	if err != nil {
		return 0, false, err
	}
	if found == 0 {
		return 0, false, nil
	}
	addr, err := r.u64()
	if err != nil {
		return 0, false, err
	}
	return addr, true, nil
}

// wireReader walks a response payload with short-read checking.
type wireReader struct {
	b []byte
}

func (r *wireReader) take(n int) ([]byte, error) {
	if len(r.b) < n {
		return nil, fmt.Errorf("short response: want %d bytes, have %d", n, len(r.b))
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out, nil
}

func (r *wireReader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *wireReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *wireReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
