// core_node.go - CFG node arena: CfgInstruction, SelectorNode, NodeRef
//
// The source (Spice86) keeps nodes as reference-counted objects holding
// hash-sets of pointers to each other. spec.md §9's design note rejects
// that for Go: here every node lives in an arena owned by the feeder and
// is addressed by a small integer handle (NodeRef), so replacement on
// self-modification just retires a handle's slot instead of chasing down
// live references - see Design Notes in DESIGN.md.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// NodeKind distinguishes the two node shapes that can occupy a graph slot,
// per spec.md §9's "two-variant sum type" design note.
type NodeKind uint8

const (
	NodeKindInstruction NodeKind = iota
	NodeKindSelector
)

// NodeRef is a small, comparable handle into the graph's arenas. The zero
// value is a valid reference (the first instruction in the arena); use
// NoNode for "no node".
type NodeRef struct {
	Kind  NodeKind
	Index int32
}

// NoNode is the sentinel "no such node" reference.
var NoNode = NodeRef{Index: -1}

func (r NodeRef) Valid() bool { return r.Index >= 0 }

// SuccessorType classifies the edge a NodeLinker attaches between two
// executed nodes (spec.md §3).
type SuccessorType uint8

const (
	SuccessorNormal SuccessorType = iota
	SuccessorCallToReturn
	SuccessorCallToMisalignedReturn
	SuccessorCpuFault
)

// InstructionShape is the closed tag set of opcode families the parser and
// executor dispatch on, replacing the source's virtual dispatch with a
// pattern-matched sum type (spec.md §9 "visitor over a closed hierarchy").
type InstructionShape uint8

const (
	ShapeInvalid InstructionShape = iota
	ShapeNop
	ShapeHlt
	ShapeCli
	ShapeSti
	ShapeCld
	ShapeStd
	ShapeMovRegImm
	ShapeMovRmImm
	ShapeMovRmReg
	ShapeMovRegRm
	ShapeMovAccMoffs
	ShapeMovSegRm
	ShapeLea
	ShapeXchgAccReg
	ShapePushReg
	ShapePopReg
	ShapePushImm
	ShapePushSeg
	ShapePopSeg
	ShapeAluRmReg
	ShapeAluRegRm
	ShapeAluAccImm
	ShapeGrp1RmImm
	ShapeGrp2Shift
	ShapeGrp3Unary
	ShapeIncDecReg
	ShapeIncDecRm
	ShapeJmpShort
	ShapeJmpNear
	ShapeJmpFar
	ShapeJccShort
	ShapeJccNear
	ShapeLoop
	ShapeCallNear
	ShapeCallFar
	ShapeRetNear
	ShapeRetNearImm
	ShapeRetFar
	ShapeIntImm8
	ShapeInt3
	ShapeIret
	ShapeStringMovs
	ShapeStringStos
	ShapeStringLods
	ShapeStringScas
	ShapeStringCmps
	ShapeInPort
	ShapeOutPort
	ShapeInvalidInstruction
)

// ModRMInfo is the static (register-independent) part of a decoded
// ModR/M+SIB+displacement addressing form; the effective address itself is
// computed at execute time from current register contents (spec.md §4.F).
type ModRMInfo struct {
	Mod, Reg, RM byte
	IsRegister   bool // mod==3: RM names a register, not memory
	HasDisp      bool
	DispIsByte   bool
	Disp         int32
}

// DecodedOperands holds the opcode-specific payload a builder fills in;
// which fields are meaningful depends on Shape.
type DecodedOperands struct {
	Opcode        uint16 // 1-byte opcode, or 0x0F00|byte for two-byte forms
	ModRM         *ModRMInfo
	ImmWidth      int // 0, 1, 2 or 4
	ImmSigned     bool
	Imm           uint32
	Rel           int32 // sign-extended branch displacement
	RegIndex      int   // opcode +r encodings (push/pop/inc/dec/mov reg,imm)
	SegIndex      int   // which segment register (mov sreg, push/pop sreg)
	SegOverride   int   // -1 = none, else SegES..SegGS
	RepPrefix     int   // 0 none, 1 REP/REPE, 2 REPNE
	OperandSize32 bool
	AddressSize32 bool
	CallFarTarget SegmentedAddress
	PortFromDX    bool // IN/OUT: port number comes from DX, not Imm

	Width   int // operand width in bytes: 1, 2 or 4
	AluOp   int // Group 1/ALU op selector: 0 ADD,1 OR,2 ADC,3 SBB,4 AND,5 SUB,6 XOR,7 CMP
	ShiftOp int // Group 2 op selector: 0 ROL,1 ROR,2 RCL,3 RCR,4 SHL,5 SHR,6 SAL(=SHL),7 SAR
	UnaryOp int // Group 3 op selector: 0 TEST,2 NOT,3 NEG,4 MUL,5 IMUL,6 DIV,7 IDIV
	Discard bool // TEST-like: compute flags but discard the result
}

// CfgInstruction is a cached, parsed instruction: the unit of reuse in the
// graph. One value per historically distinct live identity at an address
// (invariant I1).
type CfgInstruction struct {
	Self   NodeRef
	Address SegmentedAddress
	Shape   InstructionShape
	Length  uint8
	Fields  []Field
	Operands DecodedOperands

	// dispFieldIdx/immFieldIdx/relFieldIdx index into Fields (-1 if
	// absent), identifying which non-final field backs Operands.ModRM.Disp
	// /.Imm/.Rel so liveOperands can re-read it off memory instead of
	// trusting the value captured at parse time (spec.md §3, §4.B step 4).
	dispFieldIdx int
	immFieldIdx  int
	immSigned    bool
	relFieldIdx  int

	Discriminator      Discriminator
	DiscriminatorFinal Discriminator

	IsLive bool

	Predecessors         map[NodeRef]struct{}
	Successors           map[NodeRef]struct{}
	SuccessorsPerAddress map[uint32]NodeRef
	SuccessorsPerType    map[SuccessorType]map[NodeRef]struct{}
}

func newCfgInstruction(addr SegmentedAddress, parsed ParsedInstruction) *CfgInstruction {
	fields := parsed.Fields
	full, final := concatDiscriminators(fields)
	length := 0
	for _, f := range fields {
		length += f.LengthBytes()
	}
	return &CfgInstruction{
		Address:              addr,
		Shape:                parsed.Shape,
		Length:               uint8(length),
		Fields:                fields,
		Operands:             parsed.Operands,
		dispFieldIdx:         parsed.DispFieldIdx,
		immFieldIdx:          parsed.ImmFieldIdx,
		immSigned:            parsed.ImmSigned,
		relFieldIdx:          parsed.RelFieldIdx,
		Discriminator:        full,
		DiscriminatorFinal:   final,
		IsLive:               true,
		Predecessors:         make(map[NodeRef]struct{}),
		Successors:           make(map[NodeRef]struct{}),
		SuccessorsPerAddress: make(map[uint32]NodeRef),
		SuccessorsPerType:    make(map[SuccessorType]map[NodeRef]struct{}),
	}
}

// matchesLiveMemory implements invariant I4: the instruction's final-field
// bytes (opcode, ModR/M) must still agree with live memory. Final fields
// always precede non-final ones in x86 encoding order, so the final
// discriminator is exactly the first len(DiscriminatorFinal) live bytes at
// the instruction's address.
func (n *CfgInstruction) matchesLiveMemory(mem *Memory) bool {
	if len(n.DiscriminatorFinal) == 0 {
		return true
	}
	live := concreteBytesFrom(mem.GetData(n.Address.Linear(), len(n.DiscriminatorFinal)))
	return n.DiscriminatorFinal.Equal(live)
}

func (n *CfgInstruction) addSuccessorType(t SuccessorType, ref NodeRef) {
	set := n.SuccessorsPerType[t]
	if set == nil {
		set = make(map[NodeRef]struct{})
		n.SuccessorsPerType[t] = set
	}
	set[ref] = struct{}{}
}

// SelectorNode (a.k.a. DiscriminatedNode) resolves, at execute time, among
// multiple historical instructions that have occupied the same address
// under different byte patterns (spec.md §3).
type SelectorNode struct {
	Self    NodeRef
	Address SegmentedAddress

	// successorsPerDiscriminator preserves insertion order because lookups
	// must scan (discriminator equality is not transitive, so it cannot be
	// a Go map keyed by value - spec.md §9 design note).
	order []Discriminator
	byKey map[int]NodeRef // index into order -> resolved instruction node
}

func newSelectorNode(addr SegmentedAddress) *SelectorNode {
	return &SelectorNode{Address: addr, byKey: make(map[int]NodeRef)}
}

// resolve scans the selector's known discriminators against live bytes,
// returning the matching instruction node if any.
func (s *SelectorNode) resolve(live Discriminator) (NodeRef, bool) {
	for i, d := range s.order {
		if d.Equal(live) {
			return s.byKey[i], true
		}
	}
	return NoNode, false
}

// add registers a new (discriminator -> instruction) mapping.
func (s *SelectorNode) add(d Discriminator, ref NodeRef) {
	s.order = append(s.order, d)
	s.byKey[len(s.order)-1] = ref
}

// Graph is the arena that owns every node ever parsed. Replacement marks
// the old handle's CfgInstruction not-live; it is never removed from the
// arena so predecessors can keep inspecting it (spec.md §5 resource
// discipline).
type Graph struct {
	instructions []*CfgInstruction
	selectors    []*SelectorNode
}

func newGraph() *Graph {
	return &Graph{}
}

func (g *Graph) newInstructionNode(addr SegmentedAddress, parsed ParsedInstruction) NodeRef {
	inst := newCfgInstruction(addr, parsed)
	ref := NodeRef{Kind: NodeKindInstruction, Index: int32(len(g.instructions))}
	inst.Self = ref
	g.instructions = append(g.instructions, inst)
	return ref
}

func (g *Graph) newSelectorNode(addr SegmentedAddress) NodeRef {
	sel := newSelectorNode(addr)
	ref := NodeRef{Kind: NodeKindSelector, Index: int32(len(g.selectors))}
	sel.Self = ref
	g.selectors = append(g.selectors, sel)
	return ref
}

func (g *Graph) Instruction(ref NodeRef) *CfgInstruction {
	if ref.Kind != NodeKindInstruction || !ref.Valid() {
		return nil
	}
	return g.instructions[ref.Index]
}

func (g *Graph) Selector(ref NodeRef) *SelectorNode {
	if ref.Kind != NodeKindSelector || !ref.Valid() {
		return nil
	}
	return g.selectors[ref.Index]
}

// Address returns the node's guest address regardless of kind.
func (g *Graph) Address(ref NodeRef) SegmentedAddress {
	if inst := g.Instruction(ref); inst != nil {
		return inst.Address
	}
	if sel := g.Selector(ref); sel != nil {
		return sel.Address
	}
	return SegmentedAddress{}
}
