// core_dispatcher.go - narrow host-provided collaborator interfaces and the
// index-based callback dispatcher (component J)
//
// Grounded on machine_bus.go's IORegion registration (addr-range-keyed
// onRead/onWrite callbacks), generalized here into a flat integer-indexed
// registry since spec.md §6 describes ports and interrupt vectors as small
// integer keys rather than address ranges.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

import "fmt"

// IOPortBus is a narrow, host-provided collaborator: in/out on a 16-bit
// port space, dispatched by integer key (spec.md §6).
type IOPortBus interface {
	InByte(port uint16) uint8
	InWord(port uint16) uint16
	InDword(port uint16) uint32
	OutByte(port uint16, value uint8)
	OutWord(port uint16, value uint16)
	OutDword(port uint16, value uint32)
}

// ProgrammableInterruptController is polled once per step while IF=1
// (spec.md §6). Selecting a vector must also ack the IRQ; that handshake is
// the PIC collaborator's own business, not the core's.
type ProgrammableInterruptController interface {
	ComputeVectorNumber() (uint8, bool)
}

// CallbackHandler maps an interrupt vector to a host-language function,
// invoked when execution reaches a callback stub a loader installed
// (spec.md §6). DOS int 0x21 and BIOS int 0x10 are the canonical examples.
type CallbackHandler func(regs *Registers, mem *Memory) error

// IndexBasedDispatcher maps small integer indices (interrupt vectors) to
// host-provided handlers, raising UnhandledOperation with context when an
// index has nothing registered (spec.md §4.J). HaltOnUnhandled selects
// between the two §7 policies for UnhandledOperation: diagnose-and-continue
// (returning zero to the guest) or halt.
type IndexBasedDispatcher struct {
	handlers        map[uint8]CallbackHandler
	HaltOnUnhandled bool
}

func NewIndexBasedDispatcher() *IndexBasedDispatcher {
	return &IndexBasedDispatcher{handlers: make(map[uint8]CallbackHandler)}
}

func (d *IndexBasedDispatcher) Register(index uint8, handler CallbackHandler) {
	d.handlers[index] = handler
}

func (d *IndexBasedDispatcher) Unregister(index uint8) {
	delete(d.handlers, index)
}

// Dispatch runs the handler registered at index, if any. A nil error with
// ok=false means "unregistered and configured to continue" (the caller
// should treat execution as falling through to the guest's own handler, if
// any, rather than a host function).
func (d *IndexBasedDispatcher) Dispatch(index uint8, regs *Registers, mem *Memory) (ok bool, err error) {
	handler, found := d.handlers[index]
	if !found {
		if d.HaltOnUnhandled {
			return false, &UnhandledOperation{Context: "callback", Detail: fmt.Sprintf("no handler registered for index 0x%02X", index)}
		}
		return false, nil
	}
	if err := handler(regs, mem); err != nil {
		return false, err
	}
	return true, nil
}

// ioPortHandler is one registered port's read/write pair, mirroring
// machine_bus.go's IORegion shape but keyed by a single port number instead
// of an address range.
type ioPortHandler struct {
	onReadByte   func(port uint16) uint8
	onReadWord   func(port uint16) uint16
	onReadDword  func(port uint16) uint32
	onWriteByte  func(port uint16, v uint8)
	onWriteWord  func(port uint16, v uint16)
	onWriteDword func(port uint16, v uint32)
}

// RegisteredIOPortBus is the core's own minimal IOPortBus implementation:
// host code registers handlers per port, and unmapped ports read as zero
// (or raise UnhandledOperation, depending on HaltOnUnhandled) per spec.md
// §7's UnhandledOperation policy.
type RegisteredIOPortBus struct {
	ports           map[uint16]*ioPortHandler
	HaltOnUnhandled bool
	lastErr         error
}

func NewRegisteredIOPortBus() *RegisteredIOPortBus {
	return &RegisteredIOPortBus{ports: make(map[uint16]*ioPortHandler)}
}

func (b *RegisteredIOPortBus) port(p uint16) *ioPortHandler {
	h, ok := b.ports[p]
	if !ok {
		h = &ioPortHandler{}
		b.ports[p] = h
	}
	return h
}

func (b *RegisteredIOPortBus) RegisterByte(p uint16, onRead func(uint16) uint8, onWrite func(uint16, uint8)) {
	h := b.port(p)
	h.onReadByte, h.onWriteByte = onRead, onWrite
}

func (b *RegisteredIOPortBus) RegisterWord(p uint16, onRead func(uint16) uint16, onWrite func(uint16, uint16)) {
	h := b.port(p)
	h.onReadWord, h.onWriteWord = onRead, onWrite
}

func (b *RegisteredIOPortBus) RegisterDword(p uint16, onRead func(uint16) uint32, onWrite func(uint16, uint32)) {
	h := b.port(p)
	h.onReadDword, h.onWriteDword = onRead, onWrite
}

// LastError reports (and clears) the most recent UnhandledOperation, for a
// caller under the diagnose-and-continue policy that still wants to log it.
func (b *RegisteredIOPortBus) LastError() error {
	err := b.lastErr
	b.lastErr = nil
	return err
}

func (b *RegisteredIOPortBus) unhandled(kind string, port uint16) {
	err := &UnhandledOperation{Context: "io port", Detail: fmt.Sprintf("%s port 0x%04X has no handler", kind, port)}
	if b.HaltOnUnhandled {
		panic(err) // EmulationLoop.Step recovers it and returns it as an error, as it does UnhandledCfgDiscrepancy
	}
	b.lastErr = err
}

func (b *RegisteredIOPortBus) InByte(port uint16) uint8 {
	if h, ok := b.ports[port]; ok && h.onReadByte != nil {
		return h.onReadByte(port)
	}
	b.unhandled("read", port)
	return 0
}

func (b *RegisteredIOPortBus) InWord(port uint16) uint16 {
	if h, ok := b.ports[port]; ok && h.onReadWord != nil {
		return h.onReadWord(port)
	}
	b.unhandled("read", port)
	return 0
}

func (b *RegisteredIOPortBus) InDword(port uint16) uint32 {
	if h, ok := b.ports[port]; ok && h.onReadDword != nil {
		return h.onReadDword(port)
	}
	b.unhandled("read", port)
	return 0
}

func (b *RegisteredIOPortBus) OutByte(port uint16, value uint8) {
	if h, ok := b.ports[port]; ok && h.onWriteByte != nil {
		h.onWriteByte(port, value)
		return
	}
	b.unhandled("write", port)
}

func (b *RegisteredIOPortBus) OutWord(port uint16, value uint16) {
	if h, ok := b.ports[port]; ok && h.onWriteWord != nil {
		h.onWriteWord(port, value)
		return
	}
	b.unhandled("write", port)
}

func (b *RegisteredIOPortBus) OutDword(port uint16, value uint32) {
	if h, ok := b.ports[port]; ok && h.onWriteDword != nil {
		h.onWriteDword(port, value)
		return
	}
	b.unhandled("write", port)
}
