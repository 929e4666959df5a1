package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli"

	"github.com/krdx/remotemem/internal/termui"
	"github.com/krdx/remotemem/logflags"
	"github.com/krdx/remotemem/memory"
	"github.com/krdx/remotemem/pattern"
)

const usage = `remotemem inspects the memory of a privileged target process through
   the driver service, resolving module relative offsets into typed values`

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "remotemem"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "address of the driver service socket; the control device is used when empty",
		},
		cli.StringFlag{
			Name:  "network, n",
			Value: "tcp",
			Usage: "network of the driver service socket",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "write logs to this file instead of stderr",
		},
	}
	app.Commands = []cli.Command{
		attachCmd,
		exploreCmd,
		readCmd,
		scanCmd,
	}
	return app
}

func attach(ctx *cli.Context) (*memory.Handle, error) {
	if err := logflags.Setup(ctx.GlobalBool("verbose"), ctx.GlobalString("log")); err != nil {
		return nil, err
	}
	drv, err := openDriver(ctx.GlobalString("network"), ctx.GlobalString("addr"))
	if err != nil {
		return nil, err
	}
	h, err := memory.Attach(drv, logflags.Logger())
	if err != nil {
		drv.Close()
		return nil, err
	}
	return h, nil
}

var attachCmd = cli.Command{
	Name:  "attach",
	Usage: "attach to the target and print its module table",
	Action: func(ctx *cli.Context) error {
		h, err := attach(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		target := h.Modules()
		fmt.Printf("process %d\n", target.ProcessID)
		fmt.Printf("  client        %#x (%#x bytes)\n", target.Client.BaseAddress, target.Client.Size)
		fmt.Printf("  engine        %#x (%#x bytes)\n", target.Engine.BaseAddress, target.Engine.Size)
		fmt.Printf("  schemasystem  %#x (%#x bytes)\n", target.SchemaSystem.BaseAddress, target.SchemaSystem.Size)
		return nil
	},
}

var exploreCmd = cli.Command{
	Name:  "explore",
	Usage: "attach and start the interactive explorer",
	Action: func(ctx *cli.Context) error {
		h, err := attach(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		return termui.New(h).Run()
	},
}

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "read a 64 bit value at the end of an offset chain",
	ArgsUsage: "<module> <offset...>",
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) < 2 {
			return errors.New("usage: read <module> <offset...>")
		}
		m, ok := memory.ModuleFromName(args[0])
		if !ok {
			return fmt.Errorf("unknown module %q", args[0])
		}
		offsets := make([]uint64, len(args)-1)
		for i, arg := range args[1:] {
			off, err := strconv.ParseUint(arg, 0, 64)
			if err != nil {
				return fmt.Errorf("bad offset %q: %w", arg, err)
			}
			offsets[i] = off
		}

		h, err := attach(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		v, err := memory.Read[uint64](h, m, offsets...)
		if err != nil {
			return err
		}
		fmt.Printf("%d (%#x)\n", v, v)
		return nil
	},
}

var scanCmd = cli.Command{
	Name:      "scan",
	Usage:     "find a byte pattern inside a module image",
	ArgsUsage: "<module> <pattern>",
	Action: func(ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) != 2 {
			return errors.New(`usage: scan <module> "48 8B ?? 15"`)
		}
		m, ok := memory.ModuleFromName(args[0])
		if !ok {
			return fmt.Errorf("unknown module %q", args[0])
		}
		pat, err := pattern.Parse(args[1])
		if err != nil {
			return err
		}

		h, err := attach(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		offset, found, err := h.FindPattern(m, pat)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not found")
			return nil
		}
		fmt.Printf("%s+%#x\n", m, offset)
		return nil
	},
}
