package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addInstNode(g *Graph, offset uint16, shape InstructionShape, length uint8) NodeRef {
	addr := SegmentedAddress{Offset: offset}
	parsed := ParsedInstruction{Shape: shape, DispFieldIdx: -1, ImmFieldIdx: -1, RelFieldIdx: -1}
	ref := g.newInstructionNode(addr, parsed)
	g.Instruction(ref).Length = length
	return ref
}

func TestLinkWiresNormalSuccessor(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	a := addInstNode(g, 0x100, ShapeNop, 1)
	b := addInstNode(g, 0x101, ShapeNop, 1)

	require.NoError(t, l.Link(a, b))

	instA := g.Instruction(a)
	_, ok := instA.Successors[b]
	assert.True(t, ok)
	assert.Equal(t, b, instA.SuccessorsPerAddress[g.Address(b).Linear()])

	instB := g.Instruction(b)
	_, ok = instB.Predecessors[a]
	assert.True(t, ok)
}

func TestLinkFirstStepWithNoNodeIsNoop(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)
	b := addInstNode(g, 0x100, ShapeNop, 1)
	assert.NoError(t, l.Link(NoNode, b))
}

func TestLinkRejectsConflictingSuccessorAddress(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	a := addInstNode(g, 0x100, ShapeNop, 1)
	b := addInstNode(g, 0x200, ShapeNop, 1)
	c := addInstNode(g, 0x200, ShapeNop, 1) // different node, same address slot

	require.NoError(t, l.Link(a, b))
	err := l.Link(a, c)
	require.Error(t, err)
	var discrepancy *UnhandledCfgDiscrepancy
	assert.ErrorAs(t, err, &discrepancy)
}

func TestLinkPairsCallWithFallthroughReturn(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	call := addInstNode(g, 0x100, ShapeCallNear, 3) // call falls through to 0x103
	target := addInstNode(g, 0x200, ShapeNop, 1)
	ret := addInstNode(g, 0x201, ShapeRetNear, 1)
	fallthroughNode := addInstNode(g, 0x103, ShapeNop, 1)

	require.NoError(t, l.Link(call, target))
	require.NoError(t, l.Link(target, ret))
	require.NoError(t, l.Link(ret, fallthroughNode))

	callInst := g.Instruction(call)
	set := callInst.SuccessorsPerType[SuccessorCallToReturn]
	require.NotNil(t, set)
	_, ok := set[fallthroughNode]
	assert.True(t, ok)
}

func TestLinkPairsCallWithMisalignedReturn(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	call := addInstNode(g, 0x100, ShapeCallNear, 3) // expected fallthrough 0x103
	target := addInstNode(g, 0x200, ShapeNop, 1)
	ret := addInstNode(g, 0x201, ShapeRetNear, 1)
	elsewhere := addInstNode(g, 0x500, ShapeNop, 1) // not the expected return address

	require.NoError(t, l.Link(call, target))
	require.NoError(t, l.Link(target, ret))
	require.NoError(t, l.Link(ret, elsewhere))

	callInst := g.Instruction(call)
	set := callInst.SuccessorsPerType[SuccessorCallToMisalignedReturn]
	require.NotNil(t, set)
	_, ok := set[elsewhere]
	assert.True(t, ok)
}

func TestInsertIntermediatePredecessorRewiresPredecessors(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	pred := addInstNode(g, 0x100, ShapeNop, 1)
	current := addInstNode(g, 0x101, ShapeNop, 1)
	require.NoError(t, l.Link(pred, current))

	selRef := g.newSelectorNode(SegmentedAddress{Offset: 0x101})
	currentInst := g.Instruction(current)

	require.NoError(t, l.InsertIntermediatePredecessor(currentInst, current, selRef))

	predInst := g.Instruction(pred)
	_, stillPointsAtCurrent := predInst.Successors[current]
	_, pointsAtSelector := predInst.Successors[selRef]
	assert.False(t, stillPointsAtCurrent)
	assert.True(t, pointsAtSelector)
	assert.Equal(t, selRef, predInst.SuccessorsPerAddress[g.Address(selRef).Linear()])
}

func TestReplaceInstructionRehomesPredecessorsAndSuccessors(t *testing.T) {
	g := newGraph()
	l := NewNodeLinker(g)

	pred := addInstNode(g, 0x100, ShapeNop, 1)
	oldRef := addInstNode(g, 0x101, ShapeNop, 1)
	succ := addInstNode(g, 0x102, ShapeNop, 1)
	require.NoError(t, l.Link(pred, oldRef))
	require.NoError(t, l.Link(oldRef, succ))

	newRef := addInstNode(g, 0x101, ShapeMovRegImm, 3) // replacement occupying same address

	old := g.Instruction(oldRef)
	next := g.Instruction(newRef)
	l.ReplaceInstruction(old, next, oldRef, newRef)

	predInst := g.Instruction(pred)
	_, stillPointsOld := predInst.Successors[oldRef]
	_, pointsNew := predInst.Successors[newRef]
	assert.False(t, stillPointsOld)
	assert.True(t, pointsNew)

	_, ok := next.Successors[succ]
	assert.True(t, ok)
}
