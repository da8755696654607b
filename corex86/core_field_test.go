package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFieldUseValueMirrorsFinal(t *testing.T) {
	opcodeField := newField[uint8](0xB8, 0, 0x1000, []byte{0xB8}, true)
	immField := newField[uint16](0x1234, 1, 0x1001, []byte{0x34, 0x12}, false)

	assert.True(t, opcodeField.Final())
	assert.True(t, opcodeField.UseValue())

	assert.False(t, immField.Final())
	assert.False(t, immField.UseValue())
}

func TestLiveBitsLEReadsCurrentMemoryNotParseTimeValue(t *testing.T) {
	mem := NewMemory()
	addr := uint32(0x2000)
	mem.WriteU16(addr, 0x1234)

	f := newField[uint16](0x1234, 0, addr, []byte{0x34, 0x12}, false)
	assert.Equal(t, uint32(0x1234), f.LiveBitsLE(mem))

	mem.WriteU16(addr, 0x5678)
	assert.Equal(t, uint32(0x5678), f.LiveBitsLE(mem)) // Value field is stale; LiveBitsLE is not
}

func TestSignExtendToU32(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFFF), signExtendToU32(0xFF, 1))
	assert.Equal(t, uint32(0x7F), signExtendToU32(0x7F, 1))
	assert.Equal(t, uint32(0xFFFF8000), signExtendToU32(0x8000, 2))
	assert.Equal(t, uint32(0x1234), signExtendToU32(0x1234, 4))
}
