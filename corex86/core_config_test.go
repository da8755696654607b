package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoreDefaultsEntryPointToBootSector(t *testing.T) {
	cpu := NewCore()
	require.NotNil(t, cpu.Loop)
	assert.Equal(t, uint16(defaultEntryOffset), cpu.Registers.IP)
	assert.Equal(t, uint16(0), cpu.Registers.Seg(SegCS))
}

func TestNewCoreWithEntryPointOverride(t *testing.T) {
	entry := SegmentedAddress{Segment: 0x1000, Offset: 0x0200}
	cpu := NewCore(WithEntryPoint(entry))
	assert.Equal(t, entry.Offset, cpu.Registers.IP)
	assert.Equal(t, entry.Segment, cpu.Registers.Seg(SegCS))
}

func TestNewCoreWiresDispatcherAndIOPorts(t *testing.T) {
	dispatcher := NewIndexBasedDispatcher()
	called := false
	dispatcher.Register(0x21, func(r *Registers, m *Memory) error {
		called = true
		return nil
	})
	bus := NewRegisteredIOPortBus()

	cpu := NewCore(WithDispatcher(dispatcher), WithIOPorts(bus))
	cpu.Memory.LoadImage(cpu.Registers.CS().Linear(), []byte{0xCD, 0x21})

	require.NoError(t, cpu.Loop.Step())
	assert.True(t, called)
}

func TestNewCoreRunsToHaltOnAFlatImage(t *testing.T) {
	cpu := NewCore(WithEntryPoint(SegmentedAddress{Offset: 0x100}))
	cpu.Memory.LoadImage(0x100, []byte{0xB8, 0x34, 0x12, 0xF4}) // MOV AX,0x1234 ; HLT

	require.NoError(t, cpu.Loop.Run())
	assert.True(t, cpu.Loop.Halted())
	assert.Equal(t, uint16(0x1234), cpu.Registers.GPR16(RegEAX))
}
