// core_config.go - CoreConfig: functional-options construction
//
// Grounded on cpu_x86_runner.go's CPUX86Config field-struct shape, adapted
// to the functional-options idiom (zap.Option/cli.Flag style already
// present in the teacher's dependency set) so optional fields (scheduler
// capacity, PIC/dispatcher/I/O-port wiring, logger) don't force every
// caller to populate a large literal.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

import "go.uber.org/zap"

// CoreConfig holds everything NewCore needs beyond the guest memory image
// itself.
type CoreConfig struct {
	EntryPoint  SegmentedAddress
	CyclesPerMs uint64

	SchedulerCapacity int

	PIC        ProgrammableInterruptController
	Dispatcher *IndexBasedDispatcher
	IOPorts    IOPortBus

	Services *CoreServices
}

// CoreOption mutates a CoreConfig under construction.
type CoreOption func(*CoreConfig)

// WithEntryPoint sets the initial CS:IP the core's execution context starts
// at (defaults to 0000:7C00, the conventional boot-sector load point).
func WithEntryPoint(a SegmentedAddress) CoreOption {
	return func(c *CoreConfig) { c.EntryPoint = a }
}

// WithCyclesPerMs sets the scheduler's cycle-to-millisecond conversion
// (defaults to 1000, i.e. a 1MHz guest clock).
func WithCyclesPerMs(n uint64) CoreOption {
	return func(c *CoreConfig) { c.CyclesPerMs = n }
}

// WithSchedulerCapacity overrides the event queue's capacity (spec.md §4.H
// D4; defaults to defaultSchedulerCapacity).
func WithSchedulerCapacity(n int) CoreOption {
	return func(c *CoreConfig) { c.SchedulerCapacity = n }
}

// WithPIC wires an external interrupt source; without one the loop never
// polls for a maskable interrupt vector.
func WithPIC(pic ProgrammableInterruptController) CoreOption {
	return func(c *CoreConfig) { c.PIC = pic }
}

// WithDispatcher wires the INTn callback-interception table (spec.md §6).
func WithDispatcher(d *IndexBasedDispatcher) CoreOption {
	return func(c *CoreConfig) { c.Dispatcher = d }
}

// WithIOPorts wires the port-I/O bus IN/OUT instructions consult.
func WithIOPorts(b IOPortBus) CoreOption {
	return func(c *CoreConfig) { c.IOPorts = b }
}

// WithLogger installs a structured logger; a nil logger leaves the default
// no-op logger in place.
func WithLogger(log *zap.Logger) CoreOption {
	return func(c *CoreConfig) { c.Services = NewCoreServices(log) }
}

const defaultEntryOffset = 0x7C00

func defaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		EntryPoint:        SegmentedAddress{Segment: 0, Offset: defaultEntryOffset},
		CyclesPerMs:       1000,
		SchedulerCapacity: defaultSchedulerCapacity,
		Services:          NewCoreServices(nil),
	}
}

// Core bundles one guest CPU's full collaborator graph: memory, registers,
// the emulation loop, and whatever I/O collaborators were configured.
type Core struct {
	Memory   *Memory
	Registers *Registers
	Loop     *EmulationLoop
	Services *CoreServices
}

// NewCore builds a fully wired Core ready to Run, applying opts over
// defaultCoreConfig() (spec.md's ambient "avoid singletons, pass services
// explicitly" design note).
func NewCore(opts ...CoreOption) *Core {
	cfg := defaultCoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	mem := NewMemory()
	regs := NewRegisters()
	regs.SetSeg(SegCS, cfg.EntryPoint.Segment)
	regs.IP = cfg.EntryPoint.Offset

	loop := NewEmulationLoop(mem, regs, cfg.EntryPoint, cfg.CyclesPerMs, cfg.PIC, cfg.Dispatcher, cfg.IOPorts, cfg.Services.Logger)
	if cfg.SchedulerCapacity != defaultSchedulerCapacity {
		loop.scheduler = NewEmulationLoopScheduler(cfg.SchedulerCapacity, cfg.CyclesPerMs)
	}

	return &Core{Memory: mem, Registers: regs, Loop: loop, Services: cfg.Services}
}
