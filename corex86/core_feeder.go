// core_feeder.go - InstructionsFeeder: address-keyed node cache over the arena
//
// Grounded on the arena design note in spec.md §9 ("node graph with
// back-references") and on debug_disasm_x86.go's narrow read-through-memory
// accessor style, here extended with a live map and a history map per
// spec.md §4.C.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// historyEntry is one (discriminator -> instruction) fact the feeder has
// ever observed at an address. Looked up by linear scan, never by map key,
// because Discriminator.Equal is not transitive (spec.md §9).
type historyEntry struct {
	discriminator Discriminator
	node          NodeRef
}

// replacerObserver is notified whenever a live slot's occupant changes, so
// other subsystems (the linker's "current call" bookkeeping, predecessor
// caches) can update atomically instead of racing the feeder (spec.md
// §4.C "InstructionReplacerRegistry").
type replacerObserver func(old, new NodeRef)

// InstructionsFeeder turns a guest address into a live graph node, caching
// across repeated execution and re-verifying memory on every hit to detect
// self-modification (invariant I4, P2).
type InstructionsFeeder struct {
	mem    *Memory
	parser *Parser
	graph  *Graph

	live    map[uint32]NodeRef
	history map[uint32][]historyEntry

	observers []replacerObserver
}

func NewInstructionsFeeder(mem *Memory, parser *Parser, graph *Graph) *InstructionsFeeder {
	return &InstructionsFeeder{
		mem:     mem,
		parser:  parser,
		graph:   graph,
		live:    make(map[uint32]NodeRef),
		history: make(map[uint32][]historyEntry),
	}
}

// Subscribe registers an observer called synchronously on every slot
// replacement (spec.md §4.C).
func (f *InstructionsFeeder) Subscribe(obs replacerObserver) {
	f.observers = append(f.observers, obs)
}

func (f *InstructionsFeeder) notifyReplaced(old, new NodeRef) {
	for _, obs := range f.observers {
		obs(old, new)
	}
}

// GetOrParse implements spec.md §4.C's get_or_parse(a).
func (f *InstructionsFeeder) GetOrParse(a SegmentedAddress) NodeRef {
	key := a.Linear()
	if ref, ok := f.live[key]; ok {
		switch ref.Kind {
		case NodeKindInstruction:
			inst := f.graph.Instruction(ref)
			if inst.matchesLiveMemory(f.mem) {
				return ref
			}
			return f.replaceWithSelector(a, key, ref, inst)
		case NodeKindSelector:
			sel := f.graph.Selector(ref)
			live := concreteBytesFrom(f.mem.GetData(a.Linear(), f.peekMaxLenHint(sel)))
			if found, ok := sel.resolve(live); ok {
				return found
			}
			return f.parseAndAddToSelector(a, key, sel)
		}
	}
	return f.parseFresh(a, key)
}

// peekMaxLenHint bounds the speculative read used to test a selector's
// known discriminators: the longest discriminator any successor recorded,
// or 1 if the selector has none yet.
func (f *InstructionsFeeder) peekMaxLenHint(sel *SelectorNode) int {
	max := 1
	for _, d := range sel.order {
		if len(d) > max {
			max = len(d)
		}
	}
	return max
}

// parseFresh parses a brand-new instruction at a with no live occupant,
// places it live, and records it in history.
func (f *InstructionsFeeder) parseFresh(a SegmentedAddress, key uint32) NodeRef {
	parsed := f.parser.Parse(a)
	ref := f.graph.newInstructionNode(a, parsed)
	f.live[key] = ref
	f.history[key] = append(f.history[key], historyEntry{discriminator: f.graph.Instruction(ref).Discriminator, node: ref})
	return ref
}

// replaceWithSelector handles a live CfgInstruction whose final bytes no
// longer match memory: it is marked not-live, the slot becomes a
// SelectorNode carrying the old instruction under its discriminator, and a
// new instruction is parsed and added alongside it (spec.md §4.C step 1,
// S4).
func (f *InstructionsFeeder) replaceWithSelector(a SegmentedAddress, key uint32, oldRef NodeRef, old *CfgInstruction) NodeRef {
	old.IsLive = false
	selRef := f.graph.newSelectorNode(a)
	sel := f.graph.Selector(selRef)
	sel.add(old.Discriminator, oldRef)

	f.live[key] = selRef
	f.notifyReplaced(oldRef, selRef)

	return f.parseAndAddToSelector(a, key, sel)
}

// parseAndAddToSelector parses the instruction matching the current bytes
// and registers it as a new discriminator alternative on sel.
func (f *InstructionsFeeder) parseAndAddToSelector(a SegmentedAddress, key uint32, sel *SelectorNode) NodeRef {
	parsed := f.parser.Parse(a)
	ref := f.graph.newInstructionNode(a, parsed)
	inst := f.graph.Instruction(ref)
	sel.add(inst.Discriminator, ref)
	f.history[key] = append(f.history[key], historyEntry{discriminator: inst.Discriminator, node: ref})
	return ref
}

// Resurrect looks for a previously-seen instruction at a whose
// discriminator still matches live memory, without touching the live map.
// Not used by the hot GetOrParse path (which goes through the selector
// mechanism instead) but kept available for diagnostics and for the
// debugger's "what has run here" view.
func (f *InstructionsFeeder) Resurrect(a SegmentedAddress) (NodeRef, bool) {
	key := a.Linear()
	entries := f.history[key]
	if len(entries) == 0 {
		return NoNode, false
	}
	maxLen := 1
	for _, e := range entries {
		if len(e.discriminator) > maxLen {
			maxLen = len(e.discriminator)
		}
	}
	live := concreteBytesFrom(f.mem.GetData(key, maxLen))
	for _, e := range entries {
		if e.discriminator.Equal(live) {
			return e.node, true
		}
	}
	return NoNode, false
}
