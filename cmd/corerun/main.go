// corerun - loads a flat real-mode binary image at a chosen segment:offset,
// runs the CFG core to completion (or a cycle limit), and prints a register
// dump. Grounded on cpu_x86_runner.go's CPUX86Config construction and
// performance-reporting fields, adapted to the CLI surface master-g-
// childhood's NES tool uses urfave/cli for. --break wires an interactive
// console (console.go) over the core's breakpoint machinery
// (core_breakpoints.go), using the same golang.org/x/term raw-mode idiom
// terminal_host.go uses for line-oriented input (spec.md §6).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	core "github.com/intuitionamiga/cfgx86core/corex86"
)

func main() {
	app := &cli.App{
		Name:  "corerun",
		Usage: "run a flat real-mode binary image through the CFG x86 core",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Required: true, Usage: "path to a flat binary image"},
			&cli.UintFlag{Name: "segment", Value: 0, Usage: "starting CS"},
			&cli.UintFlag{Name: "offset", Value: 0x7C00, Usage: "starting IP"},
			&cli.Uint64Flag{Name: "max-cycles", Value: 0, Usage: "stop after this many cycles (0: unbounded)"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringSliceFlag{Name: "break", Usage: "offset[@condition] execution breakpoint (e.g. 0x7c05 or 0x7c05@AX==0x1234); drops into an interactive console when hit"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "corerun:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := zap.NewNop()
	if c.Bool("verbose") {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = l
	}
	defer log.Sync()

	image, err := os.ReadFile(c.String("image"))
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	entry := core.SegmentedAddress{
		Segment: uint16(c.Uint("segment")),
		Offset:  uint16(c.Uint("offset")),
	}

	cpu := core.NewCore(
		core.WithEntryPoint(entry),
		core.WithLogger(log),
	)
	cpu.Memory.LoadImage(entry.Linear(), image)

	if specs := c.StringSlice("break"); len(specs) > 0 {
		console := NewBreakpointConsole()
		for i, spec := range specs {
			bp, err := parseBreakpointSpec(spec, entry, uint32(i))
			if err != nil {
				return fmt.Errorf("parsing --break %q: %w", spec, err)
			}
			cpu.Loop.Breakpoints().Add(bp)
			cpu.Loop.Breakpoints().RegisterCallback(bp.CallbackID, func() { console.Prompt(cpu) })
		}
	}

	maxCycles := c.Uint64("max-cycles")
	for maxCycles == 0 || cpu.Loop.Cycles < maxCycles {
		if cpu.Loop.Halted() && !cpu.Loop.HasInterruptSource() {
			break
		}
		if err := cpu.Loop.Step(); err != nil {
			dumpRegisters(cpu)
			return fmt.Errorf("step at cycle %d: %w", cpu.Loop.Cycles, err)
		}
	}

	dumpRegisters(cpu)
	return nil
}

// parseBreakpointSpec decodes one --break flag value into an execution
// breakpoint keyed by linear address within the run's code segment. An
// "@condition" suffix (spec.md §6's expression grammar, core_breakpoints.go
// ParseExpression) gates whether a hit actually pauses into the console.
func parseBreakpointSpec(spec string, entry core.SegmentedAddress, id uint32) (*core.Breakpoint, error) {
	addrPart, condPart, hasCond := strings.Cut(spec, "@")

	offset, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(addrPart), "0x"), 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid offset %q: %w", addrPart, err)
	}

	bp := &core.Breakpoint{
		Kind:       core.BreakpointExecution,
		Key:        uint64(core.SegmentedAddress{Segment: entry.Segment, Offset: uint16(offset)}.Linear()),
		CallbackID: id,
	}
	if hasCond {
		cond, err := core.ParseExpression(condPart)
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", condPart, err)
		}
		bp.Condition = cond
	}
	return bp, nil
}

func dumpRegisters(cpu *core.Core) {
	r := cpu.Registers
	fmt.Printf("cycles=%d\n", cpu.Loop.Cycles)
	fmt.Printf("AX=%04X BX=%04X CX=%04X DX=%04X\n", r.GPR16(core.RegEAX), r.GPR16(core.RegEBX), r.GPR16(core.RegECX), r.GPR16(core.RegEDX))
	fmt.Printf("SI=%04X DI=%04X BP=%04X SP=%04X\n", r.GPR16(core.RegESI), r.GPR16(core.RegEDI), r.GPR16(core.RegEBP), r.GPR16(core.RegESP))
	fmt.Printf("CS=%04X IP=%04X FLAGS=%04X\n", r.Seg(core.SegCS), r.IP, r.Flags)
}
