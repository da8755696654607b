// core_field.go - parsed instruction fields and discriminator matching
//
// Grounded on debug_disasm_x86.go's cursor-based byte/word readers,
// generalised into a typed, self-describing field per spec.md §3.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// OptionalByte is one discriminator slot: Set=false is the null wildcard
// byte from spec.md §3 ("this byte does not participate in identity").
type OptionalByte struct {
	Set bool
	B   byte
}

// Discriminator is a per-byte identity signature. Equality is NOT
// transitive because of the wildcard (spec.md §9 design note): never use
// it as a map key that assumes transitivity.
type Discriminator []OptionalByte

// Equal implements spec.md §3's discriminator equality: same length, and
// at every position either side is a wildcard or both sides agree.
func (d Discriminator) Equal(o Discriminator) bool {
	if len(d) != len(o) {
		return false
	}
	for i := range d {
		if !d[i].Set || !o[i].Set {
			continue
		}
		if d[i].B != o[i].B {
			return false
		}
	}
	return true
}

// concreteBytesFrom builds a fully-concrete discriminator (no wildcards)
// out of a raw byte slice, used for discriminatorFinal and for the live
// bytes read off memory that a cached discriminator is checked against.
func concreteBytesFrom(b []byte) Discriminator {
	d := make(Discriminator, len(b))
	for i, c := range b {
		d[i] = OptionalByte{Set: true, B: c}
	}
	return d
}

// fieldNumeric is the closed set of value types an instruction field can
// carry, per spec.md §3's InstructionField<T>.
type fieldNumeric interface {
	~uint8 | ~uint16 | ~uint32 | ~int8 | ~int16 | ~int32 | SegmentedAddress
}

// Field is the type-erased view over InstructionField[T] so a
// CfgInstruction can hold a heterogeneous, ordered list of fields.
type Field interface {
	PhysicalAddress() uint32
	IndexInInstruction() int
	LengthBytes() int
	DiscriminatorBytes() Discriminator
	Final() bool
	UseValue() bool
	// LiveBitsLE re-reads this field's bytes off mem and returns them
	// decoded little-endian, ignoring whatever Value was captured at
	// parse time. Used to honour UseValue()==false (spec.md §3, §4.B
	// step 4: a non-final field's cached value must not be trusted once
	// the node is reused across a later execution).
	LiveBitsLE(mem *Memory) uint32
}

// InstructionField is a single decoded field: its value, where it came
// from, and how it participates in cache identity (spec.md §3).
type InstructionField[T fieldNumeric] struct {
	Value              T
	physicalAddress    uint32
	indexInInstruction int
	lengthBytes        int
	discriminatorBytes Discriminator
	final              bool
	useValue           bool
}

func (f InstructionField[T]) PhysicalAddress() uint32       { return f.physicalAddress }
func (f InstructionField[T]) IndexInInstruction() int       { return f.indexInInstruction }
func (f InstructionField[T]) LengthBytes() int              { return f.lengthBytes }
func (f InstructionField[T]) DiscriminatorBytes() Discriminator { return f.discriminatorBytes }
func (f InstructionField[T]) Final() bool                   { return f.final }
func (f InstructionField[T]) UseValue() bool                { return f.useValue }

func (f InstructionField[T]) LiveBitsLE(mem *Memory) uint32 {
	raw := mem.GetData(f.physicalAddress, f.lengthBytes)
	var v uint32
	for i, b := range raw {
		v |= uint32(b) << uint(8*i)
	}
	return v
}

// newField builds a Field from raw bytes already consumed by the cursor.
// final controls whether a byte change at this field invalidates the
// cached instruction (opcode/ModRM bytes) or is simply re-read each
// execution (immediates, displacements) per spec.md §4.B step 4. A field
// that isn't final can't be trusted to still hold the live byte pattern
// once the node is reused (self-modification only invalidates the node
// when a final byte changes), so useValue mirrors final: callers that
// need a non-final field's current value must re-read via LiveBitsLE
// rather than Value.
func newField[T fieldNumeric](value T, index int, physAddr uint32, raw []byte, final bool) InstructionField[T] {
	return InstructionField[T]{
		Value:              value,
		physicalAddress:    physAddr,
		indexInInstruction: index,
		lengthBytes:        len(raw),
		discriminatorBytes: concreteBytesFrom(raw),
		final:              final,
		useValue:           final,
	}
}

// signExtendToU32 reproduces the sign-extension a width-byte immediate or
// displacement underwent at parse time, given its raw little-endian bits.
func signExtendToU32(bits uint32, width int) uint32 {
	switch width {
	case 1:
		return uint32(int32(int8(bits)))
	case 2:
		return uint32(int32(int16(bits)))
	default:
		return bits
	}
}

// concatDiscriminators builds the full-instruction discriminator (all
// fields) and the discriminatorFinal (only the final fields), in field
// order, per spec.md §3's derived discriminator definitions.
func concatDiscriminators(fields []Field) (full, final Discriminator) {
	for _, f := range fields {
		full = append(full, f.DiscriminatorBytes()...)
		if f.Final() {
			final = append(final, f.DiscriminatorBytes()...)
		}
	}
	return full, final
}
