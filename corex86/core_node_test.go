package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminatorEqualWildcardsMatchAnything(t *testing.T) {
	wild := Discriminator{{Set: true, B: 0x90}, {Set: false}}
	concreteA := Discriminator{{Set: true, B: 0x90}, {Set: true, B: 0x01}}
	concreteB := Discriminator{{Set: true, B: 0x90}, {Set: true, B: 0x02}}

	assert.True(t, wild.Equal(concreteA))
	assert.True(t, wild.Equal(concreteB))
	assert.False(t, concreteA.Equal(concreteB)) // both fully concrete and differ
}

// TestDiscriminatorEqualityIsNotTransitive documents spec.md §3's explicit
// non-transitivity: a wildcard discriminator can equal two concrete
// discriminators that don't equal each other.
func TestDiscriminatorEqualityIsNotTransitive(t *testing.T) {
	wild := Discriminator{{Set: false}}
	a := Discriminator{{Set: true, B: 1}}
	b := Discriminator{{Set: true, B: 2}}

	require.True(t, wild.Equal(a))
	require.True(t, wild.Equal(b))
	assert.False(t, a.Equal(b))
}

func TestDiscriminatorEqualLengthMismatch(t *testing.T) {
	a := Discriminator{{Set: true, B: 1}}
	b := Discriminator{{Set: true, B: 1}, {Set: true, B: 2}}
	assert.False(t, a.Equal(b))
}

func TestNodeRefValidity(t *testing.T) {
	assert.False(t, NoNode.Valid())
	assert.True(t, NodeRef{Kind: NodeKindInstruction, Index: 0}.Valid())
}

func TestGraphNewInstructionNodeAssignsSelfRef(t *testing.T) {
	g := newGraph()
	addr := SegmentedAddress{Segment: 0, Offset: 0x100}
	ref := g.newInstructionNode(addr, ParsedInstruction{Shape: ShapeNop, DispFieldIdx: -1, ImmFieldIdx: -1, RelFieldIdx: -1})

	inst := g.Instruction(ref)
	require.NotNil(t, inst)
	assert.Equal(t, ref, inst.Self)
	assert.Equal(t, addr, inst.Address)
	assert.True(t, inst.IsLive)
}

func TestSelectorNodeResolveScansInOrder(t *testing.T) {
	sel := newSelectorNode(SegmentedAddress{Offset: 0x200})
	d1 := Discriminator{{Set: true, B: 0x90}}
	d2 := Discriminator{{Set: true, B: 0xCC}}
	ref1 := NodeRef{Kind: NodeKindInstruction, Index: 0}
	ref2 := NodeRef{Kind: NodeKindInstruction, Index: 1}

	sel.add(d1, ref1)
	sel.add(d2, ref2)

	got, ok := sel.resolve(Discriminator{{Set: true, B: 0xCC}})
	require.True(t, ok)
	assert.Equal(t, ref2, got)

	_, ok = sel.resolve(Discriminator{{Set: true, B: 0xFF}})
	assert.False(t, ok)
}

func TestCfgInstructionMatchesLiveMemory(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Segment: 0, Offset: 0x300}
	mem.WriteU8(addr.Linear(), 0xB8) // MOV AX, imm16 opcode

	fields := []Field{newField[uint8](0xB8, 0, addr.Linear(), []byte{0xB8}, true)}
	parsed := ParsedInstruction{Shape: ShapeMovRegImm, Fields: fields, DispFieldIdx: -1, ImmFieldIdx: -1, RelFieldIdx: -1}
	inst := newCfgInstruction(addr, parsed)

	assert.True(t, inst.matchesLiveMemory(mem))

	mem.WriteU8(addr.Linear(), 0x90) // self-modified to NOP
	assert.False(t, inst.matchesLiveMemory(mem))
}
