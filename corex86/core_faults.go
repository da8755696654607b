// core_faults.go - CPU fault to guest-interrupt conversion (spec.md §4.G)
//
// Grounded on user-none-go-chip-m68k/exception.go's vector-table jump,
// reusing the executor's own interrupt dispatch rather than duplicating
// the FLAGS/CS/IP push sequence.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// recoverFault converts a CpuFault caught by the loop into the
// corresponding guest interrupt: it runs the same IVT dispatch an INTn
// instruction would, then records the faulting node as a CpuFault-typed
// predecessor of the handler node, so the graph keeps a trace of why
// control passed there (spec.md §4.G, invariant-adjacent to I2/I3).
func recoverFault(graph *Graph, feeder *InstructionsFeeder, executor *InstructionExecutor, faultingRef NodeRef, returnAddr SegmentedAddress, fault *CpuFault) ExecuteResult {
	result, _ := executor.dispatchInterrupt(uint8(fault.Vector), returnAddr)
	if result.NewContext == nil {
		return result
	}

	handlerRef := feeder.GetOrParse(result.NewContext.Entry)
	result.NextIPHint = handlerRef

	faultingInst := graph.Instruction(faultingRef)
	handlerInst := graph.Instruction(handlerRef)
	if faultingInst == nil || handlerInst == nil {
		return result
	}
	faultingInst.Successors[handlerRef] = struct{}{}
	faultingInst.SuccessorsPerAddress[result.NewContext.Entry.Linear()] = handlerRef
	faultingInst.addSuccessorType(SuccessorCpuFault, handlerRef)
	if handlerInst.Predecessors == nil {
		handlerInst.Predecessors = make(map[NodeRef]struct{})
	}
	handlerInst.Predecessors[faultingRef] = struct{}{}
	return result
}
