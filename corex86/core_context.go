// core_context.go - ExecutionContextManager: stacked interrupt contexts
//
// Grounded on user-none-go-chip-m68k/exception.go's vector-dispatch entry
// point, adapted per spec.md §9's "ExecutionContext arena" design note: an
// external interrupt both jumps to a handler (like exception()'s vector
// read) and *also* records an address where control is expected back, so
// the Core's loop can pop the saved context rather than rely on SR/stack
// discipline alone.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// ExecutionContext tracks one nested flow of control: the entry point it
// was signalled for, and the loop's bookkeeping of what ran last and what
// the graph says comes next (spec.md §4.E).
type ExecutionContext struct {
	EntryPoint            SegmentedAddress
	LastExecuted          NodeRef
	NextAccordingToGraph   NodeRef
}

func newExecutionContext(entry SegmentedAddress) *ExecutionContext {
	return &ExecutionContext{EntryPoint: entry, LastExecuted: NoNode, NextAccordingToGraph: NoNode}
}

// ExecutionContextManager maintains the current context plus the
// per-entry-point registry and the per-return-address stacks used to
// restore nested contexts in LIFO order (invariant I6-like discipline,
// property P6).
type ExecutionContextManager struct {
	entryPoints map[uint32]*ExecutionContext
	current     *ExecutionContext

	// returns is keyed by the linear address execution is expected back at;
	// each entry is a stack (last pushed, first popped) so repeated
	// re-entry at the same return address unwinds in reverse order.
	returns map[uint32][]*ExecutionContext
}

func NewExecutionContextManager(initialEntry SegmentedAddress) *ExecutionContextManager {
	m := &ExecutionContextManager{
		entryPoints: make(map[uint32]*ExecutionContext),
		returns:     make(map[uint32][]*ExecutionContext),
	}
	m.current = m.lookupOrCreate(initialEntry)
	return m
}

func (m *ExecutionContextManager) lookupOrCreate(entry SegmentedAddress) *ExecutionContext {
	key := entry.Linear()
	if ctx, ok := m.entryPoints[key]; ok {
		return ctx
	}
	ctx := newExecutionContext(entry)
	m.entryPoints[key] = ctx
	return ctx
}

// Current returns the context presently executing.
func (m *ExecutionContextManager) Current() *ExecutionContext { return m.current }

// SignalNewContext implements spec.md §4.E's signal_new_context(entry,
// expected_return): switches to a (possibly reused) context for entry,
// saving the previous one on the expected_return return-stack.
func (m *ExecutionContextManager) SignalNewContext(entry, expectedReturn SegmentedAddress) *ExecutionContext {
	next := m.lookupOrCreate(entry)
	next.LastExecuted = NoNode
	next.NextAccordingToGraph = NoNode

	key := expectedReturn.Linear()
	m.returns[key] = append(m.returns[key], m.current)
	m.current = next
	return next
}

// MaybeRestoreAt implements spec.md §4.E's maybe_restore_at(ip): if a
// context was saved expecting return at ip, pop the most recently pushed
// one (LIFO, P6) and make it current. Returns false if nothing was saved
// there, leaving current unchanged.
func (m *ExecutionContextManager) MaybeRestoreAt(ip SegmentedAddress) bool {
	key := ip.Linear()
	stack := m.returns[key]
	if len(stack) == 0 {
		return false
	}
	top := stack[len(stack)-1]
	m.returns[key] = stack[:len(stack)-1]
	m.current = top
	return true
}
