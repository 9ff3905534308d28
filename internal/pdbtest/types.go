package pdbtest

import (
	"encoding/binary"
	"math"

	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// TypeBuilder assigns type indices to leaf records in the order added.
type TypeBuilder struct {
	records []byte
	next    uint32
}

// NewTypeBuilder returns a builder whose first index is 0x1000.
func NewTypeBuilder() *TypeBuilder {
	return &TypeBuilder{next: streams.TypeIndexBegin}
}

// Next returns the index the next record will receive.
func (b *TypeBuilder) Next() uint32 { return b.next }

// Add appends a record and returns its type index.
func (b *TypeBuilder) Add(kind uint16, body []byte) uint32 {
	rec := binary.LittleEndian.AppendUint16(nil, kind)
	rec = append(rec, body...)
	rec = pad(rec, 2)
	b.records = binary.LittleEndian.AppendUint16(b.records, uint16(len(rec)))
	b.records = append(b.records, rec...)
	idx := b.next
	b.next++
	return idx
}

// Stream encodes a V80 TPI stream.
func (b *TypeBuilder) Stream() []byte {
	return tpiStream(streams.TypeIndexBegin, b.next, b.records)
}

// EmptyTypeStream encodes a TPI or IPI stream with no records.
func EmptyTypeStream() []byte {
	return tpiStream(streams.TypeIndexBegin, streams.TypeIndexBegin, nil)
}

func tpiStream(begin, end uint32, records []byte) []byte {
	h := binary.LittleEndian.AppendUint32(nil, streams.TPIStreamVersionV80)
	h = binary.LittleEndian.AppendUint32(h, streams.TPIHeaderSize)
	h = binary.LittleEndian.AppendUint32(h, begin)
	h = binary.LittleEndian.AppendUint32(h, end)
	h = binary.LittleEndian.AppendUint32(h, uint32(len(records)))
	h = binary.LittleEndian.AppendUint16(h, 0xFFFF)
	h = binary.LittleEndian.AppendUint16(h, 0xFFFF)
	h = append(h, make([]byte, streams.TPIHeaderSize-len(h))...)
	return append(h, records...)
}

// pad appends LF_PADn bytes until len(b)+lead is a multiple of four.
func pad(b []byte, lead int) []byte {
	for n := (4 - (len(b)+lead)%4) % 4; n > 0; n-- {
		b = append(b, byte(streams.LF_PAD0+n))
	}
	return b
}

// Numeric encodes an unsigned numeric leaf.
func Numeric(v uint64) []byte {
	switch {
	case v < streams.LF_NUMERIC:
		return binary.LittleEndian.AppendUint16(nil, uint16(v))
	case v <= math.MaxUint16:
		return binary.LittleEndian.AppendUint16(u16(streams.LF_USHORT), uint16(v))
	case v <= math.MaxUint32:
		return binary.LittleEndian.AppendUint32(u16(streams.LF_ULONG), uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(u16(streams.LF_UQUADWORD), v)
	}
}

// SignedNumeric encodes a signed numeric leaf in its narrowest form.
func SignedNumeric(v int64) []byte {
	switch {
	case v >= 0 && v < streams.LF_NUMERIC:
		return binary.LittleEndian.AppendUint16(nil, uint16(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return append(u16(streams.LF_CHAR), byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return binary.LittleEndian.AppendUint16(u16(streams.LF_SHORT), uint16(int16(v)))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return binary.LittleEndian.AppendUint32(u16(streams.LF_LONG), uint32(int32(v)))
	default:
		return binary.LittleEndian.AppendUint64(u16(streams.LF_QUADWORD), uint64(v))
	}
}

func u16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func cstr(s string) []byte { return append([]byte(s), 0) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Field list entries. Each carries its leaf and trailing padding.

// Member encodes LF_MEMBER with public access.
func Member(typ uint32, offset uint64, name string) []byte {
	return pad(cat(u16(streams.LF_MEMBER), u16(3), u32(typ), Numeric(offset), cstr(name)), 0)
}

// StaticMember encodes LF_STMEMBER.
func StaticMember(typ uint32, name string) []byte {
	return pad(cat(u16(streams.LF_STMEMBER), u16(3), u32(typ), cstr(name)), 0)
}

// BaseClass encodes LF_BCLASS.
func BaseClass(typ uint32, offset uint64) []byte {
	return pad(cat(u16(streams.LF_BCLASS), u16(3), u32(typ), Numeric(offset)), 0)
}

// OneMethod encodes a non-virtual LF_ONEMETHOD.
func OneMethod(typ uint32, name string) []byte {
	return pad(cat(u16(streams.LF_ONEMETHOD), u16(3), u32(typ), cstr(name)), 0)
}

// IntroMethod encodes an introducing virtual LF_ONEMETHOD with a vtable offset.
func IntroMethod(typ uint32, vtableOffset uint32, name string) []byte {
	return pad(cat(u16(streams.LF_ONEMETHOD), u16(3|4<<2), u32(typ), u32(vtableOffset), cstr(name)), 0)
}

// NestedType encodes LF_NESTTYPE.
func NestedType(typ uint32, name string) []byte {
	return pad(cat(u16(streams.LF_NESTTYPE), u16(0), u32(typ), cstr(name)), 0)
}

// VFuncTab encodes LF_VFUNCTAB.
func VFuncTab(typ uint32) []byte {
	return cat(u16(streams.LF_VFUNCTAB), u16(0), u32(typ))
}

// Enumerate encodes LF_ENUMERATE.
func Enumerate(value int64, name string) []byte {
	return pad(cat(u16(streams.LF_ENUMERATE), u16(3), SignedNumeric(value), cstr(name)), 0)
}

// Continuation encodes LF_INDEX.
func Continuation(next uint32) []byte {
	return cat(u16(streams.LF_INDEX), u16(0), u32(next))
}

// FieldList adds an LF_FIELDLIST built from encoded entries.
func (b *TypeBuilder) FieldList(fields ...[]byte) uint32 {
	return b.Add(streams.LF_FIELDLIST, cat(fields...))
}

// Struct adds an LF_STRUCTURE (or LF_CLASS / LF_INTERFACE via kind).
func (b *TypeBuilder) Struct(kind uint16, count uint16, prop uint16, fieldList uint32, size uint64, name string) uint32 {
	return b.Add(kind, cat(u16(count), u16(prop), u32(fieldList), u32(0), u32(0), Numeric(size), cstr(name)))
}

// ForwardStruct adds a forward reference to a structure.
func (b *TypeBuilder) ForwardStruct(name string) uint32 {
	return b.Struct(streams.LF_STRUCTURE, 0, streams.PropFwdRef, 0, 0, name)
}

// Union adds an LF_UNION.
func (b *TypeBuilder) Union(count uint16, fieldList uint32, size uint64, name string) uint32 {
	return b.Add(streams.LF_UNION, cat(u16(count), u16(0), u32(fieldList), Numeric(size), cstr(name)))
}

// Enum adds an LF_ENUM.
func (b *TypeBuilder) Enum(count uint16, underlying, fieldList uint32, name string) uint32 {
	return b.Add(streams.LF_ENUM, cat(u16(count), u16(0), u32(underlying), u32(fieldList), cstr(name)))
}

// Pointer adds a plain LF_POINTER of the given width.
func (b *TypeBuilder) Pointer(referent uint32, size int) uint32 {
	kind := uint32(0x0a) // near 32
	if size == 8 {
		kind = 0x0c // 64-bit
	}
	return b.Add(streams.LF_POINTER, cat(u32(referent), u32(kind|uint32(size)<<13)))
}

// Modifier adds an LF_MODIFIER.
func (b *TypeBuilder) Modifier(typ uint32, mods uint16) uint32 {
	return b.Add(streams.LF_MODIFIER, cat(u32(typ), u16(mods)))
}

// Array adds an LF_ARRAY of size bytes.
func (b *TypeBuilder) Array(elem uint32, size uint64) uint32 {
	return b.Add(streams.LF_ARRAY, cat(u32(elem), u32(0x23), Numeric(size), cstr("")))
}

// Bitfield adds an LF_BITFIELD.
func (b *TypeBuilder) Bitfield(typ uint32, length, position uint8) uint32 {
	return b.Add(streams.LF_BITFIELD, cat(u32(typ), []byte{length, position}))
}

// Procedure adds an LF_ARGLIST and the LF_PROCEDURE using it.
func (b *TypeBuilder) Procedure(ret uint32, args ...uint32) uint32 {
	list := u32(uint32(len(args)))
	for _, a := range args {
		list = append(list, u32(a)...)
	}
	argList := b.Add(streams.LF_ARGLIST, list)
	return b.Add(streams.LF_PROCEDURE, cat(u32(ret), []byte{0, 0}, u16(uint16(len(args))), u32(argList)))
}
