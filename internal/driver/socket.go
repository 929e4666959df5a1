package driver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/krdx/remotemem/driver"
	"github.com/krdx/remotemem/pattern"
)

// Conn speaks the framed request protocol over a stream connection to the
// privileged service. A mutex serializes request/response pairs, so one
// Conn may back a handle shared across goroutines.
type Conn struct {
	mu     sync.Mutex
	c      net.Conn
	r      *bufio.Reader
	closed bool
}

var _ driver.Driver = (*Conn)(nil)

func Dial(network, addr string) (*Conn, error) {
	c, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial driver service: %w", err)
	}
	return NewConn(c), nil
}

func NewConn(c net.Conn) *Conn {
	return &Conn{c: c, r: bufio.NewReader(c)}
}

func (d *Conn) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.c.Close()
}

func (d *Conn) roundTrip(op byte, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}

	frame := make([]byte, 0, 5+len(payload))
	frame = append(frame, op)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	if _, err := d.c.Write(frame); err != nil {
		return nil, fmt.Errorf("send request %#x: %w", op, err)
	}

	var hdr [5]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read response %#x: %w", op, err)
	}
	body := make([]byte, binary.LittleEndian.Uint32(hdr[1:]))
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, fmt.Errorf("read response %#x: %w", op, err)
	}
	if hdr[0] != statusOK {
		return nil, fmt.Errorf("%w: %s", driver.ErrRequestFailed, body)
	}
	return body, nil
}

func (d *Conn) TargetInfo() (driver.TargetInfo, error) {
	body, err := d.roundTrip(opTargetInfo, appendTargetInfoRequest(nil))
	if err != nil {
		return driver.TargetInfo{}, err
	}
	return parseTargetInfo(body)
}

func (d *Conn) ToggleProtection(enabled bool) error {
	_, err := d.roundTrip(opProtection, appendProtectionRequest(nil, enabled))
	return err
}

func (d *Conn) ReadChain(pid uint32, offsets []uint64, out []byte) error {
	body, err := d.roundTrip(opReadChain, appendReadChainRequest(nil, pid, offsets, len(out)))
	if err != nil {
		return err
	}
	if len(body) != len(out) {
		return fmt.Errorf("%w: read returned %d bytes, want %d", driver.ErrRequestFailed, len(body), len(out))
	}
	copy(out, body)
	return nil
}

func (d *Conn) FindPattern(pid uint32, base, size uint64, pat *pattern.Pattern) (uint64, bool, error) {
	body, err := d.roundTrip(opFindPattern, appendFindPatternRequest(nil, pid, base, size, pat.String()))
	if err != nil {
		return 0, false, err
	}
	return parseFindPattern(body)
}
