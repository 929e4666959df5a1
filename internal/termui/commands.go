package termui

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/shlex"

	"github.com/krdx/remotemem/memory"
	"github.com/krdx/remotemem/pattern"
)

var errExitRequest = errors.New("exit requested")

type cmdFn func(t *Term, args []string) error

type command struct {
	aliases []string
	fn      cmdFn
	help    string
}

func (c command) match(name string) bool {
	for _, alias := range c.aliases {
		if alias == name {
			return true
		}
	}
	return false
}

type commands struct {
	cmds []command
}

func newCommands() *commands {
	c := &commands{}
	c.cmds = []command{
		{aliases: []string{"help", "h"}, fn: c.help, help: "Print this message."},
		{aliases: []string{"modules", "mod"}, fn: modules, help: "Print the module table of the attached target."},
		{aliases: []string{"read", "r"}, fn: read, help: "read <module> <type> <offset...> - read one value at the end of an offset chain. Types: u8 u16 u32 u64 i8 i16 i32 i64 f32 f64 ptr."},
		{aliases: []string{"string", "str"}, fn: readString, help: "string <module> <offset...> - read a null terminated string."},
		{aliases: []string{"dump", "d"}, fn: dump, help: "dump <module> <offset> <length> - hex dump a byte range."},
		{aliases: []string{"scan", "s"}, fn: scan, help: "scan <module> <pattern> - find a byte pattern, e.g. scan client \"48 8B ?? 15\"."},
		{aliases: []string{"offset", "o"}, fn: moduleOffset, help: "offset <module> <address> - convert an absolute address into a module relative offset."},
		{aliases: []string{"protect"}, fn: protect, help: "Re-issue the protection toggle for the session."},
		{aliases: []string{"exit", "quit", "q"}, fn: exit, help: "Leave the explorer."},
	}
	return c
}

func (c *commands) help(t *Term, args []string) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 2, ' ', 0)
	for _, cmd := range c.cmds {
		h := cmd.help
		if idx := strings.Index(h, " - "); idx >= 0 {
			h = h[idx+3:]
		}
		fmt.Fprintf(w, "    %s\t%s\n", strings.Join(cmd.aliases, ", "), h)
	}
	return w.Flush()
}

func (c *commands) call(t *Term, input string) error {
	args, err := shlex.Split(input)
	if err != nil {
		return err
	}
	for _, cmd := range c.cmds {
		if cmd.match(args[0]) {
			return cmd.fn(t, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q, type 'help' for the list", args[0])
}

func modules(t *Term, args []string) error {
	target := t.h.Modules()
	fmt.Fprintf(t.stdout, "process %d\n", target.ProcessID)
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "    client\t%#x\t%#x bytes\n", target.Client.BaseAddress, target.Client.Size)
	fmt.Fprintf(w, "    engine\t%#x\t%#x bytes\n", target.Engine.BaseAddress, target.Engine.Size)
	fmt.Fprintf(w, "    schemasystem\t%#x\t%#x bytes\n", target.SchemaSystem.BaseAddress, target.SchemaSystem.Size)
	return w.Flush()
}

func read(t *Term, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: read <module> <type> <offset...>")
	}
	m, err := parseModule(args[0])
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(args[2:])
	if err != nil {
		return err
	}
	switch args[1] {
	case "u8":
		return printRead[uint8](t, m, offsets)
	case "u16":
		return printRead[uint16](t, m, offsets)
	case "u32":
		return printRead[uint32](t, m, offsets)
	case "u64", "ptr":
		return printRead[uint64](t, m, offsets)
	case "i8":
		return printRead[int8](t, m, offsets)
	case "i16":
		return printRead[int16](t, m, offsets)
	case "i32":
		return printRead[int32](t, m, offsets)
	case "i64":
		return printRead[int64](t, m, offsets)
	case "f32":
		return printRead[float32](t, m, offsets)
	case "f64":
		return printRead[float64](t, m, offsets)
	}
	return fmt.Errorf("unknown type %q", args[1])
}

func printRead[T any](t *Term, m memory.Module, offsets []uint64) error {
	v, err := memory.Read[T](t.h, m, offsets...)
	if err != nil {
		return err
	}
	switch v := any(v).(type) {
	case uint64:
		fmt.Fprintf(t.stdout, "%d (%#x)\n", v, v)
	default:
		fmt.Fprintf(t.stdout, "%v\n", v)
	}
	return nil
}

func readString(t *Term, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: string <module> <offset...>")
	}
	m, err := parseModule(args[0])
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(args[1:])
	if err != nil {
		return err
	}
	s, err := t.h.ReadString(m, offsets, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%q\n", s)
	return nil
}

func dump(t *Term, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: dump <module> <offset> <length>")
	}
	m, err := parseModule(args[0])
	if err != nil {
		return err
	}
	offset, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return err
	}
	length, err := strconv.ParseUint(args[2], 0, 24)
	if err != nil {
		return err
	}
	buf := make([]byte, length)
	if err := t.h.ReadSlice(m, []uint64{offset}, buf); err != nil {
		return err
	}
	fmt.Fprint(t.stdout, hex.Dump(buf))
	return nil
}

func scan(t *Term, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: scan <module> <pattern>")
	}
	m, err := parseModule(args[0])
	if err != nil {
		return err
	}
	pat, err := pattern.Parse(args[1])
	if err != nil {
		return err
	}
	offset, found, err := t.h.FindPattern(m, pat)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(t.stdout, "not found")
		return nil
	}
	fmt.Fprintf(t.stdout, "%s+%#x\n", m, offset)
	return nil
}

func moduleOffset(t *Term, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: offset <module> <address>")
	}
	m, err := parseModule(args[0])
	if err != nil {
		return err
	}
	addr, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return err
	}
	offset, ok := t.h.ModuleOffset(m, addr)
	if !ok {
		fmt.Fprintf(t.stdout, "%#x is not inside %s\n", addr, m)
		return nil
	}
	fmt.Fprintf(t.stdout, "%s+%#x\n", m, offset)
	return nil
}

func protect(t *Term, args []string) error {
	return t.h.Protect()
}

func exit(t *Term, args []string) error {
	return errExitRequest
}

func parseModule(name string) (memory.Module, error) {
	m, ok := memory.ModuleFromName(name)
	if !ok {
		return 0, fmt.Errorf("unknown module %q", name)
	}
	return m, nil
}

func parseOffsets(args []string) ([]uint64, error) {
	offsets := make([]uint64, len(args))
	for i, arg := range args {
		off, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q: %w", arg, err)
		}
		offsets[i] = off
	}
	return offsets, nil
}
