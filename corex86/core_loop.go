// core_loop.go - EmulationLoop: glues the feeder, linker, executor,
// scheduler and context manager into one step (spec.md §4.I, component I)
//
// Grounded on cpu_x86_runner.go's fetch/decode/execute drive loop,
// restructured around the node-graph hand-off this Core uses instead of a
// plain program counter walk.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

import "go.uber.org/zap"

// EmulationLoop owns every per-step collaborator and runs the eight-stage
// sequence spec.md §4.I describes. Stop is sampled between steps only
// (spec.md §5): a step in progress always runs to completion.
type EmulationLoop struct {
	mem            *Memory
	regs           *Registers
	graph          *Graph
	feeder         *InstructionsFeeder
	linker         *NodeLinker
	executor       *InstructionExecutor
	contextManager *ExecutionContextManager
	scheduler      *EmulationLoopScheduler
	breakpoints    *BreakpointTable
	dispatcher     *IndexBasedDispatcher
	pic            ProgrammableInterruptController // nil: no external interrupts are polled

	log *zap.Logger

	cyclesPerInstruction uint64
	Cycles               uint64

	stop bool
}

// NewEmulationLoop wires the full per-step collaborator set rooted at
// entryPoint. pic may be nil (no external interrupt source); dispatcher may
// be nil (no callback stub interception).
func NewEmulationLoop(mem *Memory, regs *Registers, entryPoint SegmentedAddress, cyclesPerMs uint64, pic ProgrammableInterruptController, dispatcher *IndexBasedDispatcher, ioPorts IOPortBus, log *zap.Logger) *EmulationLoop {
	graph := newGraph()
	parser := NewParser(mem)
	feeder := NewInstructionsFeeder(mem, parser, graph)
	linker := NewNodeLinker(graph)

	// When a SelectorNode takes over a slot previously held by a plain
	// CfgInstruction (self-modification), rewire every predecessor that
	// still points at the retired instruction onto the selector instead,
	// so invariant I3 (back-link consistency) survives the promotion
	// (spec.md §4.D).
	feeder.Subscribe(func(old, newRef NodeRef) {
		oldInst := graph.Instruction(old)
		if oldInst == nil {
			return
		}
		if err := linker.InsertIntermediatePredecessor(oldInst, old, newRef); err != nil && log != nil {
			log.Error("insert intermediate predecessor failed", zap.Error(err))
		}
	})

	return &EmulationLoop{
		mem:                  mem,
		regs:                 regs,
		graph:                graph,
		feeder:               feeder,
		linker:               linker,
		executor:             NewInstructionExecutor(mem, regs, feeder, ioPorts),
		contextManager:       NewExecutionContextManager(entryPoint),
		scheduler:            NewEmulationLoopScheduler(defaultSchedulerCapacity, cyclesPerMs),
		breakpoints:          NewBreakpointTable(),
		dispatcher:           dispatcher,
		pic:                  pic,
		log:                  log,
		cyclesPerInstruction: 1,
	}
}

// Stop requests the loop exit at the next step boundary (spec.md §5's
// cooperative cancellation).
func (l *EmulationLoop) Stop() { l.stop = true }

// Halted reports whether the executor is in the HLT state.
func (l *EmulationLoop) Halted() bool { return l.executor.Halted }

// Breakpoints exposes the loop's BreakpointTable so a host caller (e.g.
// corerun's interactive console) can register execution breakpoints before
// the run starts (spec.md §6).
func (l *EmulationLoop) Breakpoints() *BreakpointTable { return l.breakpoints }

// HasInterruptSource reports whether a PIC is wired, i.e. whether a HLT'd
// CPU has any way to wake back up.
func (l *EmulationLoop) HasInterruptSource() bool { return l.pic != nil }

// Run steps until Stop is called, HLT blocks with nothing left to wake it,
// or Step returns an error (a fatal UnhandledCfgDiscrepancy, or an
// UnhandledOperation raised under the halt policy).
func (l *EmulationLoop) Run() error {
	for !l.stop {
		if l.executor.Halted && l.pic == nil {
			return nil
		}
		if err := l.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step runs exactly one iteration of spec.md §4.I. A HLT'd CPU still steps
// (so a pending external interrupt, PIT/keyboard for instance, can wake it)
// but does not fetch or execute a new instruction while halted.
func (l *EmulationLoop) Step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			op, ok := r.(*UnhandledOperation)
			if !ok {
				panic(r)
			}
			err = op
		}
	}()
	ctx := l.contextManager.Current()

	if l.executor.Halted {
		l.scheduler.AdvanceCycles(l.cyclesPerInstruction)
		l.Cycles += l.cyclesPerInstruction
		return l.pollInterrupt()
	}

	// 1. choose to_execute.
	toExecute := ctx.NextAccordingToGraph
	if !toExecute.Valid() {
		toExecute = l.feeder.GetOrParse(l.regs.CS())
	}

	// 2. link the previous step's node to this one.
	if ctx.LastExecuted.Valid() {
		if err := l.linker.Link(ctx.LastExecuted, toExecute); err != nil {
			return err
		}
	}

	// GetOrParse always resolves selectors to a concrete instruction before
	// returning, so toExecute is never a bare SelectorNode ref here; a nil
	// node means the graph is inconsistent (I1-I4 violation).
	node := l.graph.Instruction(toExecute)
	if node == nil {
		return &UnhandledCfgDiscrepancy{Detail: "node chosen to execute at " + addrString(l.graph.Address(toExecute)) + " is not an instruction"}
	}
	faultingAddr := l.regs.CS()

	// A registered CallbackHandler intercepts an INTn/INT3 before it reaches
	// the guest IVT (spec.md §6: "invoked when execution reaches a special
	// ... callback stub pattern installed by a loader"). The host function
	// runs in place of the guest handler; IP simply advances past the INT.
	if handled, err := l.tryCallbackIntercept(node); handled || err != nil {
		if err != nil {
			return err
		}
		nextAddr := faultingAddr.Add(uint16(node.Length))
		l.regs.IP = nextAddr.Offset
		l.scheduler.AdvanceCycles(l.cyclesPerInstruction)
		l.Cycles += l.cyclesPerInstruction
		ctx.LastExecuted = toExecute
		ctx.NextAccordingToGraph = l.feeder.GetOrParse(nextAddr)
		l.breakpoints.CheckExecution(uint64(l.regs.CS().Linear()), l.regs, l.mem)
		return l.pollInterrupt()
	}

	// 3. execute, converting any CPU fault into a guest interrupt.
	result, fault := l.executor.Execute(node)
	if fault != nil {
		result = recoverFault(l.graph, l.feeder, l.executor, toExecute, faultingAddr, fault)
	}

	// 4. advance cycles.
	l.scheduler.AdvanceCycles(l.cyclesPerInstruction)
	l.Cycles += l.cyclesPerInstruction

	// 5. scheduler already drained by AdvanceCycles above.

	// 6. maybe restore a saved context.
	if result.CanCauseContextRestore {
		l.contextManager.MaybeRestoreAt(l.regs.CS())
	}

	// interrupt dispatch from an INT/INT3/fault conversion: apply before
	// polling the PIC so an INTn this step takes priority over an external
	// IRQ landing on the same step.
	if result.NewContext != nil {
		l.contextManager.SignalNewContext(result.NewContext.Entry, result.NewContext.ExpectedReturn)
	}

	// 8. update bookkeeping (on the context now current, in case the signal
	// above switched it; step 7, pollInterrupt, runs after this).
	cur := l.contextManager.Current()
	cur.LastExecuted = toExecute
	cur.NextAccordingToGraph = result.NextIPHint

	l.breakpoints.CheckExecution(uint64(l.regs.CS().Linear()), l.regs, l.mem)

	if result.NewContext == nil {
		return l.pollInterrupt()
	}
	return nil
}

// tryCallbackIntercept consults the dispatcher for an INTn/INT3 node's
// vector; handled=true means the host handler ran and the loop should skip
// guest-level execution of the instruction entirely.
func (l *EmulationLoop) tryCallbackIntercept(node *CfgInstruction) (handled bool, err error) {
	if l.dispatcher == nil {
		return false, nil
	}
	var vector uint8
	switch node.Shape {
	case ShapeInt3:
		vector = 3
	case ShapeIntImm8:
		vector = uint8(node.Operands.Imm)
	default:
		return false, nil
	}
	return l.dispatcher.Dispatch(vector, l.regs, l.mem)
}

// pollInterrupt implements step 7: when IF=1 and the PIC has a pending
// vector, dispatch it as a new nested context (spec.md §4.I, S6).
func (l *EmulationLoop) pollInterrupt() error {
	if l.pic == nil || !l.regs.IF() {
		return nil
	}
	vector, ok := l.pic.ComputeVectorNumber()
	if !ok {
		return nil
	}
	returnAddr := l.regs.CS()
	result, _ := l.executor.dispatchInterrupt(vector, returnAddr)
	if result.NewContext == nil {
		return nil
	}
	l.contextManager.SignalNewContext(result.NewContext.Entry, result.NewContext.ExpectedReturn)
	next := l.contextManager.Current()
	next.NextAccordingToGraph = l.feeder.GetOrParse(result.NewContext.Entry)
	l.executor.Halted = false // an external interrupt wakes a halted CPU
	if l.log != nil {
		l.log.Debug("dispatched external interrupt", zap.Uint8("vector", vector))
	}
	return nil
}
