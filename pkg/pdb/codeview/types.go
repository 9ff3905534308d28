package codeview

import (
	"encoding/binary"
	"fmt"

	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// Aggregate is a decoded LF_STRUCTURE, LF_CLASS, LF_INTERFACE, LF_UNION or
// LF_ENUM record.
type Aggregate struct {
	Kind       uint16
	Count      uint16
	Property   uint16
	FieldList  uint32
	Derived    uint32
	VShape     uint32
	Size       uint64 // zero for enums; use the underlying type
	Underlying uint32 // enums only
	Name       string
	UniqueName string
}

// IsForwardRef reports whether the record only declares the type.
func (a *Aggregate) IsForwardRef() bool { return a.Property&streams.PropFwdRef != 0 }

// IsEnum reports whether the record is an LF_ENUM.
func (a *Aggregate) IsEnum() bool { return a.Kind == streams.LF_ENUM }

// KindName returns the C keyword for the aggregate.
func (a *Aggregate) KindName() string {
	switch a.Kind {
	case streams.LF_CLASS:
		return "class"
	case streams.LF_INTERFACE:
		return "interface"
	case streams.LF_UNION:
		return "union"
	case streams.LF_ENUM:
		return "enum"
	default:
		return "struct"
	}
}

// IsAggregate reports whether kind decodes with ParseAggregate.
func IsAggregate(kind uint16) bool {
	switch kind {
	case streams.LF_STRUCTURE, streams.LF_CLASS, streams.LF_INTERFACE, streams.LF_UNION, streams.LF_ENUM:
		return true
	}
	return false
}

// ParseAggregate decodes a class, union or enum record.
func ParseAggregate(rec *streams.TypeRecord) (*Aggregate, error) {
	d := rec.Data
	a := &Aggregate{Kind: rec.Kind}

	var rest []byte
	switch rec.Kind {
	case streams.LF_STRUCTURE, streams.LF_CLASS, streams.LF_INTERFACE:
		if len(d) < 18 {
			return nil, shortRecord(rec)
		}
		a.Count, a.Property = le16(d[0:]), le16(d[2:])
		a.FieldList, a.Derived, a.VShape = le32(d[4:]), le32(d[8:]), le32(d[12:])
		rest = d[16:]
	case streams.LF_UNION:
		if len(d) < 10 {
			return nil, shortRecord(rec)
		}
		a.Count, a.Property = le16(d[0:]), le16(d[2:])
		a.FieldList = le32(d[4:])
		rest = d[8:]
	case streams.LF_ENUM:
		if len(d) < 12 {
			return nil, shortRecord(rec)
		}
		a.Count, a.Property = le16(d[0:]), le16(d[2:])
		a.Underlying, a.FieldList = le32(d[4:]), le32(d[8:])
		a.Name, a.UniqueName = parseNames(d[12:], a.Property)
		return a, nil
	default:
		return nil, fmt.Errorf("type %#x: %s is not an aggregate", rec.Index, streams.LeafKindName(rec.Kind))
	}

	size, n := streams.ParseNumeric(rest)
	if n == 0 {
		return nil, fmt.Errorf("type %#x: malformed size leaf", rec.Index)
	}
	a.Size = size
	a.Name, a.UniqueName = parseNames(rest[n:], a.Property)
	return a, nil
}

func parseNames(data []byte, prop uint16) (string, string) {
	name, n := streams.ParseString(data)
	if prop&streams.PropHasUnique == 0 || n >= len(data) {
		return name, ""
	}
	unique, _ := streams.ParseString(data[n:])
	return name, unique
}

// Pointer is a decoded LF_POINTER record.
type Pointer struct {
	Referent uint32
	Attrs    uint32
}

// Pointer modes.
const (
	PtrModePointer    = 0
	PtrModeLValueRef  = 1
	PtrModeMember     = 2
	PtrModeMemberFunc = 3
	PtrModeRValueRef  = 4
)

func (p Pointer) Kind() uint32     { return p.Attrs & 0x1f }
func (p Pointer) Mode() uint32     { return (p.Attrs >> 5) & 0x7 }
func (p Pointer) IsConst() bool    { return p.Attrs&(1<<10) != 0 }
func (p Pointer) IsVolatile() bool { return p.Attrs&(1<<9) != 0 }

// Size returns the pointer width in bytes.
func (p Pointer) Size() int { return int((p.Attrs >> 13) & 0x3f) }

// Modifier is a decoded LF_MODIFIER record.
type Modifier struct {
	Type      uint32
	Modifiers uint16
}

func (m Modifier) IsConst() bool     { return m.Modifiers&0x1 != 0 }
func (m Modifier) IsVolatile() bool  { return m.Modifiers&0x2 != 0 }
func (m Modifier) IsUnaligned() bool { return m.Modifiers&0x4 != 0 }

// Array is a decoded LF_ARRAY record. Size is in bytes.
type Array struct {
	ElemType  uint32
	IndexType uint32
	Size      uint64
	Name      string
}

// Bitfield is a decoded LF_BITFIELD record.
type Bitfield struct {
	Type     uint32
	Length   uint8
	Position uint8
}

// Procedure is a decoded LF_PROCEDURE or LF_MFUNCTION record.
type Procedure struct {
	ReturnType uint32
	ClassType  uint32 // member functions only
	ThisType   uint32 // member functions only
	CallConv   uint8
	Attrs      uint8
	NumParams  uint16
	ArgList    uint32
	ThisAdjust int32
}

// ParsePointer decodes an LF_POINTER record.
func ParsePointer(rec *streams.TypeRecord) (Pointer, error) {
	if len(rec.Data) < 8 {
		return Pointer{}, shortRecord(rec)
	}
	return Pointer{Referent: le32(rec.Data), Attrs: le32(rec.Data[4:])}, nil
}

// ParseModifier decodes an LF_MODIFIER record.
func ParseModifier(rec *streams.TypeRecord) (Modifier, error) {
	if len(rec.Data) < 6 {
		return Modifier{}, shortRecord(rec)
	}
	return Modifier{Type: le32(rec.Data), Modifiers: le16(rec.Data[4:])}, nil
}

// ParseArray decodes an LF_ARRAY record.
func ParseArray(rec *streams.TypeRecord) (Array, error) {
	d := rec.Data
	if len(d) < 10 {
		return Array{}, shortRecord(rec)
	}
	a := Array{ElemType: le32(d), IndexType: le32(d[4:])}
	size, n := streams.ParseNumeric(d[8:])
	if n == 0 {
		return Array{}, fmt.Errorf("type %#x: malformed array size leaf", rec.Index)
	}
	a.Size = size
	a.Name, _ = streams.ParseString(d[8+n:])
	return a, nil
}

// ParseBitfield decodes an LF_BITFIELD record.
func ParseBitfield(rec *streams.TypeRecord) (Bitfield, error) {
	if len(rec.Data) < 6 {
		return Bitfield{}, shortRecord(rec)
	}
	return Bitfield{Type: le32(rec.Data), Length: rec.Data[4], Position: rec.Data[5]}, nil
}

// ParseProcedure decodes an LF_PROCEDURE or LF_MFUNCTION record.
func ParseProcedure(rec *streams.TypeRecord) (Procedure, error) {
	d := rec.Data
	switch rec.Kind {
	case streams.LF_PROCEDURE:
		if len(d) < 12 {
			return Procedure{}, shortRecord(rec)
		}
		return Procedure{
			ReturnType: le32(d),
			CallConv:   d[4],
			Attrs:      d[5],
			NumParams:  le16(d[6:]),
			ArgList:    le32(d[8:]),
		}, nil
	case streams.LF_MFUNCTION:
		if len(d) < 24 {
			return Procedure{}, shortRecord(rec)
		}
		return Procedure{
			ReturnType: le32(d),
			ClassType:  le32(d[4:]),
			ThisType:   le32(d[8:]),
			CallConv:   d[12],
			Attrs:      d[13],
			NumParams:  le16(d[14:]),
			ArgList:    le32(d[16:]),
			ThisAdjust: int32(le32(d[20:])),
		}, nil
	}
	return Procedure{}, fmt.Errorf("type %#x: %s is not a procedure", rec.Index, streams.LeafKindName(rec.Kind))
}

// ParseArgList decodes an LF_ARGLIST record.
func ParseArgList(rec *streams.TypeRecord) ([]uint32, error) {
	d := rec.Data
	if len(d) < 4 {
		return nil, shortRecord(rec)
	}
	count := int(le32(d))
	if 4+count*4 > len(d) {
		return nil, fmt.Errorf("type %#x: argument list of %d entries truncated", rec.Index, count)
	}
	args := make([]uint32, count)
	for i := range args {
		args[i] = le32(d[4+i*4:])
	}
	return args, nil
}

func shortRecord(rec *streams.TypeRecord) error {
	return fmt.Errorf("type %#x: %s record too small (%d bytes)", rec.Index, streams.LeafKindName(rec.Kind), len(rec.Data))
}

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
