// console.go - interactive breakpoint console
//
// Grounded on terminal_host.go's raw-mode stdin handling (term.MakeRaw/
// term.Restore, CR->LF and DEL->BS translation), adapted from its
// background non-blocking byte reader into a synchronous, line-oriented
// prompt: the run loop is already stopped waiting on the breakpoint
// callback, so there is no need to poll - a blocking read is correct here
// (spec.md §4.I, §6 "Breakpoints").
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	core "github.com/intuitionamiga/cfgx86core/corex86"
)

// BreakpointConsole reads commands from stdin, in raw mode, whenever a
// registered breakpoint fires mid-run.
type BreakpointConsole struct {
	fd int
}

func NewBreakpointConsole() *BreakpointConsole {
	return &BreakpointConsole{fd: int(os.Stdin.Fd())}
}

// readLine puts stdin into raw mode for the duration of one line, echoing
// each byte back itself (raw mode disables the terminal's own echo), and
// returns once Enter is pressed.
func (c *BreakpointConsole) readLine() (string, error) {
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(c.fd, oldState)

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		b := buf[0]
		// Raw mode delivers CR for Enter; DEL (0x7F) for Backspace on most
		// modern terminals (terminal_host.go's translation conventions).
		if b == '\r' || b == '\n' {
			fmt.Print("\r\n")
			return string(line), nil
		}
		if b == 0x7F || b == 0x08 {
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Print("\b \b")
			}
			continue
		}
		line = append(line, b)
		fmt.Printf("%c", b)
	}
}

// Prompt blocks the calling goroutine (the emulation loop's own) until the
// user resumes execution with "c"/"continue". "r"/"regs" dumps registers
// without resuming; "q"/"quit" exits the process immediately.
func (c *BreakpointConsole) Prompt(cpu *core.Core) {
	r := cpu.Registers
	fmt.Printf("\r\nbreakpoint hit at CS:IP=%04X:%04X (cycle %d)\r\n", r.Seg(core.SegCS), r.IP, cpu.Loop.Cycles)
	for {
		fmt.Print("(corerun) ")
		line, err := c.readLine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\r\nconsole: %v\r\n", err)
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "c", "continue":
			return
		case "r", "regs":
			dumpRegisters(cpu)
		case "q", "quit":
			os.Exit(0)
		default:
			fmt.Printf("unknown command %q (try c, r, or q)\r\n", fields[0])
		}
	}
}
