package typedesc

import (
	"fmt"
	"math"
)

// VarType is the discriminant of a Variant, using the OLE VT_* numbering.
type VarType uint16

const (
	VTEmpty VarType = 0
	VTI2    VarType = 2
	VTI4    VarType = 3
	VTR4    VarType = 4
	VTR8    VarType = 5
	VTBool  VarType = 11
	VTI1    VarType = 16
	VTUI1   VarType = 17
	VTUI2   VarType = 18
	VTUI4   VarType = 19
	VTI8    VarType = 20
	VTUI8   VarType = 21
	VTInt   VarType = 22
	VTUInt  VarType = 23
)

// VariantSize is the size of a variant on the provider side: a 2-byte
// discriminant padded to 8 bytes followed by an 8-byte payload.
const VariantSize = 16

// Variant carries a constant value whose width is reported separately by
// the symbol that owns it. The payload is kept as raw little-endian bits;
// narrower interpretations are always the low-order bytes.
type Variant struct {
	VT   VarType
	bits uint64
}

// NewVariant wraps raw payload bits.
func NewVariant(vt VarType, bits uint64) Variant {
	return Variant{VT: vt, bits: bits}
}

func Int8Variant(v uint8) Variant     { return Variant{VT: VTUI1, bits: uint64(v)} }
func Int16Variant(v int16) Variant    { return Variant{VT: VTI2, bits: uint64(uint16(v))} }
func Int32Variant(v int32) Variant    { return Variant{VT: VTI4, bits: uint64(uint32(v))} }
func Int64Variant(v int64) Variant    { return Variant{VT: VTI8, bits: uint64(v)} }
func Float64Variant(v float64) Variant { return Variant{VT: VTR8, bits: math.Float64bits(v)} }

// Bits returns the raw 64-bit payload.
func (v Variant) Bits() uint64 { return v.bits }

// Float64 interprets the whole payload as a double.
func (v Variant) Float64() float64 { return math.Float64frombits(v.bits) }

func (v Variant) String() string {
	return fmt.Sprintf("VT: %d iValue: %d", v.VT, v.As(KindInt32))
}

// IntKind selects which integer interpretation of a Variant payload is active.
type IntKind uint8

const (
	KindInt32 IntKind = iota
	KindByte
	KindInt16
	KindInt64
)

func (k IntKind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindInt16:
		return "int16"
	case KindInt64:
		return "int64"
	default:
		return "int32"
	}
}

// KindForSize maps a reported member size to the payload interpretation.
// Sizes other than 1, 2 and 8 read the payload as 32 bits.
func KindForSize(size int) IntKind {
	switch size {
	case 8:
		return KindInt64
	case 2:
		return KindInt16
	case 1:
		return KindByte
	default:
		return KindInt32
	}
}

// As reads the payload with the given interpretation. Byte is
// zero-extended, the signed kinds are sign-extended.
func (v Variant) As(k IntKind) int64 {
	switch k {
	case KindInt64:
		return int64(v.bits)
	case KindInt16:
		return int64(int16(uint16(v.bits)))
	case KindByte:
		return int64(uint8(v.bits))
	default:
		return int64(int32(uint32(v.bits)))
	}
}

// Decode reads the payload as an integer of the given byte width.
func (v Variant) Decode(size int) int64 {
	return v.As(KindForSize(size))
}
