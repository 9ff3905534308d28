package pdbtest

import (
	"encoding/binary"

	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
)

// SymbolBuilder appends CodeView symbol records.
type SymbolBuilder struct {
	buf []byte
}

// Add appends a record padded to four bytes and returns its offset.
func (s *SymbolBuilder) Add(kind uint16, body []byte) uint32 {
	off := uint32(len(s.buf))
	rec := cat(u16(kind), body)
	for (len(rec)+2)%4 != 0 {
		rec = append(rec, 0)
	}
	s.buf = binary.LittleEndian.AppendUint16(s.buf, uint16(len(rec)))
	s.buf = append(s.buf, rec...)
	return off
}

// Bytes returns the encoded records.
func (s *SymbolBuilder) Bytes() []byte { return s.buf }

// Public adds an S_PUB32.
func (s *SymbolBuilder) Public(flags uint32, segment uint16, offset uint32, name string) uint32 {
	return s.Add(codeview.S_PUB32, cat(u32(flags), u32(offset), u16(segment), cstr(name)))
}

// Data adds a data symbol of the given kind, e.g. S_GDATA32.
func (s *SymbolBuilder) Data(kind uint16, typ uint32, segment uint16, offset uint32, name string) uint32 {
	return s.Add(kind, cat(u32(typ), u32(offset), u16(segment), cstr(name)))
}

// UDT adds an S_UDT.
func (s *SymbolBuilder) UDT(typ uint32, name string) uint32 {
	return s.Add(codeview.S_UDT, cat(u32(typ), cstr(name)))
}

// Constant adds an S_CONSTANT.
func (s *SymbolBuilder) Constant(typ uint32, value int64, name string) uint32 {
	return s.Add(codeview.S_CONSTANT, cat(u32(typ), SignedNumeric(value), cstr(name)))
}

// Proc adds a procedure symbol and its matching S_END.
func (s *SymbolBuilder) Proc(kind uint16, typ uint32, segment uint16, offset, length uint32, name string) uint32 {
	body := cat(
		u32(0), u32(0), u32(0), // parent, end, next
		u32(length), u32(0), u32(length),
		u32(typ), u32(offset), u16(segment), []byte{0},
		cstr(name),
	)
	off := s.Add(kind, body)
	s.Add(codeview.S_END, nil)
	return off
}

// ProcRef adds an S_PROCREF into module (1-based) at offset.
func (s *SymbolBuilder) ProcRef(module uint16, offset uint32, name string) uint32 {
	return s.Add(codeview.S_PROCREF, cat(u32(0), u32(offset), u16(module), cstr(name)))
}
