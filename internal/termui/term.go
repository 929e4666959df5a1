// Package termui is the interactive explorer: a line based prompt over an
// attached handle with history and command completion.
package termui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/krdx/remotemem/memory"
)

const prompt = "(mem) "

type Term struct {
	h      *memory.Handle
	line   *liner.State
	stdout io.Writer
	cmds   *commands
}

func New(h *memory.Handle) *Term {
	stdout := io.Writer(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		stdout = colorable.NewColorableStdout()
	}
	return &Term{
		h:      h,
		line:   liner.NewLiner(),
		stdout: stdout,
		cmds:   newCommands(),
	}
}

func (t *Term) Run() error {
	defer t.line.Close()

	completions := trie.New()
	for _, cmd := range t.cmds.cmds {
		for _, alias := range cmd.aliases {
			completions.Add(alias, nil)
		}
	}
	t.line.SetCompleter(func(line string) (c []string) {
		return completions.PrefixSearch(line)
	})

	fmt.Fprintln(t.stdout, "Type 'help' for the list of commands.")
	for {
		input, err := t.line.Prompt(prompt)
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		t.line.AppendHistory(input)

		if err := t.cmds.call(t, input); err != nil {
			if errors.Is(err, errExitRequest) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		}
	}
}
