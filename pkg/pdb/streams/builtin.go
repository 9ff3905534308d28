package streams

import "fmt"

// Built-in type indices (below TypeIndexBegin) pack a pointer mode in bits
// 8-11 and a kind in bits 0-7.
const (
	TM_DIRECT  = 0 // Not a pointer
	TM_NPTR    = 1 // Near pointer
	TM_FPTR    = 2 // Far pointer
	TM_HPTR    = 3 // Huge pointer
	TM_NPTR32  = 4 // 32-bit near pointer
	TM_FPTR32  = 5 // 32-bit far pointer
	TM_NPTR64  = 6 // 64-bit near pointer
	TM_NPTR128 = 7 // 128-bit near pointer
)

// Built-in kinds.
const (
	T_NOTYPE    = 0x0000
	T_ABS       = 0x0001
	T_SEGMENT   = 0x0002
	T_VOID      = 0x0003
	T_CURRENCY  = 0x0004
	T_NBASICSTR = 0x0005
	T_FBASICSTR = 0x0006
	T_NOTTRANS  = 0x0007
	T_HRESULT   = 0x0008

	T_CHAR  = 0x0010
	T_SHORT = 0x0011
	T_LONG  = 0x0012
	T_QUAD  = 0x0013
	T_OCT   = 0x0014

	T_UCHAR  = 0x0020
	T_USHORT = 0x0021
	T_ULONG  = 0x0022
	T_UQUAD  = 0x0023
	T_UOCT   = 0x0024

	T_BOOL08 = 0x0030
	T_BOOL16 = 0x0031
	T_BOOL32 = 0x0032
	T_BOOL64 = 0x0033

	T_REAL32  = 0x0040
	T_REAL64  = 0x0041
	T_REAL80  = 0x0042
	T_REAL128 = 0x0043
	T_REAL48  = 0x0044
	T_REAL16  = 0x0046

	T_INT1   = 0x0068
	T_UINT1  = 0x0069
	T_RCHAR  = 0x0070
	T_WCHAR  = 0x0071
	T_INT2   = 0x0072
	T_UINT2  = 0x0073
	T_INT4   = 0x0074
	T_UINT4  = 0x0075
	T_INT8   = 0x0076
	T_UINT8  = 0x0077
	T_INT16  = 0x0078
	T_UINT16 = 0x0079
	T_CHAR16 = 0x007a
	T_CHAR32 = 0x007b
	T_CHAR8  = 0x007c
)

// BuiltinKind and BuiltinMode split a built-in type index.
func BuiltinKind(typeIdx uint32) uint32 { return typeIdx & 0xFF }
func BuiltinMode(typeIdx uint32) uint32 { return (typeIdx >> 8) & 0xF }

type builtin struct {
	name string
	size int
}

var builtins = map[uint32]builtin{
	T_NOTYPE:   {"<no type>", 0},
	T_VOID:     {"void", 0},
	T_HRESULT:  {"HRESULT", 4},
	T_CHAR:     {"char", 1},
	T_SHORT:    {"short", 2},
	T_LONG:     {"long", 4},
	T_QUAD:     {"int64", 8},
	T_OCT:      {"int128", 16},
	T_UCHAR:    {"unsigned char", 1},
	T_USHORT:   {"unsigned short", 2},
	T_ULONG:    {"unsigned long", 4},
	T_UQUAD:    {"uint64", 8},
	T_UOCT:     {"uint128", 16},
	T_BOOL08:   {"bool", 1},
	T_BOOL16:   {"bool16", 2},
	T_BOOL32:   {"BOOL", 4},
	T_BOOL64:   {"bool64", 8},
	T_REAL16:   {"half", 2},
	T_REAL32:   {"float", 4},
	T_REAL48:   {"real48", 6},
	T_REAL64:   {"double", 8},
	T_REAL80:   {"long double", 10},
	T_REAL128:  {"real128", 16},
	T_INT1:     {"int8", 1},
	T_UINT1:    {"uint8", 1},
	T_RCHAR:    {"char", 1},
	T_WCHAR:    {"wchar_t", 2},
	T_INT2:     {"int16", 2},
	T_UINT2:    {"uint16", 2},
	T_INT4:     {"int32", 4},
	T_UINT4:    {"uint32", 4},
	T_INT8:     {"int64", 8},
	T_UINT8:    {"uint64", 8},
	T_INT16:    {"int128", 16},
	T_UINT16:   {"uint128", 16},
	T_CHAR16:   {"char16_t", 2},
	T_CHAR32:   {"char32_t", 4},
	T_CHAR8:    {"char8_t", 1},
	T_CURRENCY: {"CURRENCY", 8},
}

var pointerSizes = map[uint32]int{
	TM_NPTR:    2,
	TM_FPTR:    4,
	TM_HPTR:    4,
	TM_NPTR32:  4,
	TM_FPTR32:  6,
	TM_NPTR64:  8,
	TM_NPTR128: 16,
}

// GetBuiltinTypeName returns the name of a built-in type index.
func GetBuiltinTypeName(typeIdx uint32) string {
	if typeIdx >= TypeIndexBegin {
		return ""
	}

	baseName := fmt.Sprintf("builtin_0x%04x", typeIdx)
	if b, ok := builtins[BuiltinKind(typeIdx)]; ok {
		baseName = b.name
	}

	switch BuiltinMode(typeIdx) {
	case TM_DIRECT:
		return baseName
	case TM_FPTR, TM_FPTR32:
		return baseName + " far*"
	default:
		return baseName + "*"
	}
}

// BuiltinTypeSize returns the size in bytes of a built-in type index and
// whether the kind is known.
func BuiltinTypeSize(typeIdx uint32) (int, bool) {
	if typeIdx >= TypeIndexBegin {
		return 0, false
	}
	if mode := BuiltinMode(typeIdx); mode != TM_DIRECT {
		size, ok := pointerSizes[mode]
		return size, ok
	}
	b, ok := builtins[BuiltinKind(typeIdx)]
	return b.size, ok
}

// IsSignedBuiltin reports whether a direct built-in kind is a signed integer.
func IsSignedBuiltin(typeIdx uint32) bool {
	switch BuiltinKind(typeIdx) {
	case T_CHAR, T_SHORT, T_LONG, T_QUAD, T_OCT, T_INT1, T_RCHAR, T_INT2, T_INT4, T_INT8, T_INT16:
		return BuiltinMode(typeIdx) == TM_DIRECT
	}
	return false
}
