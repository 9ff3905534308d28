package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// LF_* leaf kinds (32-bit type index variants).
const (
	LF_VTSHAPE   = 0x000a
	LF_MODIFIER  = 0x1001
	LF_POINTER   = 0x1002
	LF_PROCEDURE = 0x1008
	LF_MFUNCTION = 0x1009

	LF_ARGLIST    = 0x1201
	LF_FIELDLIST  = 0x1203
	LF_BITFIELD   = 0x1205
	LF_METHODLIST = 0x1206

	LF_BCLASS    = 0x1400
	LF_VBCLASS   = 0x1401
	LF_IVBCLASS  = 0x1402
	LF_INDEX     = 0x1404
	LF_VFUNCTAB  = 0x1409
	LF_VFUNCOFF  = 0x140c
	LF_ENUMERATE = 0x1502
	LF_ARRAY     = 0x1503
	LF_CLASS     = 0x1504
	LF_STRUCTURE = 0x1505
	LF_UNION     = 0x1506
	LF_ENUM      = 0x1507
	LF_MEMBER    = 0x150d
	LF_STMEMBER  = 0x150e
	LF_METHOD    = 0x150f
	LF_NESTTYPE  = 0x1510
	LF_ONEMETHOD = 0x1511
	LF_INTERFACE = 0x1519

	LF_FUNC_ID      = 0x1601
	LF_MFUNC_ID     = 0x1602
	LF_BUILDINFO    = 0x1603
	LF_SUBSTR_LIST  = 0x1604
	LF_STRING_ID    = 0x1605
	LF_UDT_SRC_LINE = 0x1606
)

// Numeric leaves used by ParseNumeric.
const (
	LF_NUMERIC   = 0x8000
	LF_CHAR      = 0x8000
	LF_SHORT     = 0x8001
	LF_USHORT    = 0x8002
	LF_LONG      = 0x8003
	LF_ULONG     = 0x8004
	LF_QUADWORD  = 0x8009
	LF_UQUADWORD = 0x800a
)

// LF_PAD0 is the smallest padding byte; LF_PADn skips n bytes.
const LF_PAD0 = 0xf0

// Property bits of class, union and enum records.
const (
	PropPacked     = 0x0001
	PropFwdRef     = 0x0080
	PropScoped     = 0x0100
	PropHasUnique  = 0x0200
	PropSealed     = 0x0400
	PropIntrinsics = 0x2000
)

var leafNames = map[uint16]string{
	LF_VTSHAPE:      "LF_VTSHAPE",
	LF_MODIFIER:     "LF_MODIFIER",
	LF_POINTER:      "LF_POINTER",
	LF_PROCEDURE:    "LF_PROCEDURE",
	LF_MFUNCTION:    "LF_MFUNCTION",
	LF_ARGLIST:      "LF_ARGLIST",
	LF_FIELDLIST:    "LF_FIELDLIST",
	LF_BITFIELD:     "LF_BITFIELD",
	LF_METHODLIST:   "LF_METHODLIST",
	LF_BCLASS:       "LF_BCLASS",
	LF_VBCLASS:      "LF_VBCLASS",
	LF_IVBCLASS:     "LF_IVBCLASS",
	LF_INDEX:        "LF_INDEX",
	LF_VFUNCTAB:     "LF_VFUNCTAB",
	LF_ENUMERATE:    "LF_ENUMERATE",
	LF_ARRAY:        "LF_ARRAY",
	LF_CLASS:        "LF_CLASS",
	LF_STRUCTURE:    "LF_STRUCTURE",
	LF_UNION:        "LF_UNION",
	LF_ENUM:         "LF_ENUM",
	LF_MEMBER:       "LF_MEMBER",
	LF_STMEMBER:     "LF_STMEMBER",
	LF_METHOD:       "LF_METHOD",
	LF_NESTTYPE:     "LF_NESTTYPE",
	LF_ONEMETHOD:    "LF_ONEMETHOD",
	LF_INTERFACE:    "LF_INTERFACE",
	LF_FUNC_ID:      "LF_FUNC_ID",
	LF_MFUNC_ID:     "LF_MFUNC_ID",
	LF_BUILDINFO:    "LF_BUILDINFO",
	LF_SUBSTR_LIST:  "LF_SUBSTR_LIST",
	LF_STRING_ID:    "LF_STRING_ID",
	LF_UDT_SRC_LINE: "LF_UDT_SRC_LINE",
}

// LeafKindName returns the name for a LF_* constant.
func LeafKindName(kind uint16) string {
	if name, ok := leafNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("LF_0x%04x", kind)
}

// numericWidth is the encoded size, leaf included, of each numeric leaf.
var numericWidth = map[uint16]int{
	LF_CHAR: 3, LF_SHORT: 4, LF_USHORT: 4, LF_LONG: 6, LF_ULONG: 6,
	LF_QUADWORD: 10, LF_UQUADWORD: 10,
}

// ParseNumeric parses a numeric leaf. Signed encodings are sign-extended
// into the returned bits. The second result is the number of bytes consumed,
// zero when data is too short or the leaf is unknown.
func ParseNumeric(data []byte) (uint64, int) {
	if len(data) < 2 {
		return 0, 0
	}

	val := binary.LittleEndian.Uint16(data)
	if val < LF_NUMERIC {
		return uint64(val), 2
	}

	need := numericWidth[val]
	if need == 0 || len(data) < need {
		return 0, 0
	}

	switch val {
	case LF_CHAR:
		return uint64(int8(data[2])), need
	case LF_SHORT:
		return uint64(int16(binary.LittleEndian.Uint16(data[2:]))), need
	case LF_USHORT:
		return uint64(binary.LittleEndian.Uint16(data[2:])), need
	case LF_LONG:
		return uint64(int32(binary.LittleEndian.Uint32(data[2:]))), need
	case LF_ULONG:
		return uint64(binary.LittleEndian.Uint32(data[2:])), need
	default:
		return binary.LittleEndian.Uint64(data[2:]), need
	}
}

// ParseString parses a null-terminated string from data.
// Returns the string and number of bytes consumed (including null).
func ParseString(data []byte) (string, int) {
	idx := bytes.IndexByte(data, 0)
	if idx == -1 {
		return string(data), len(data)
	}
	return string(data[:idx]), idx + 1
}

// SkipPadding returns the number of LF_PADn bytes at the start of data.
func SkipPadding(data []byte) int {
	if len(data) == 0 || data[0] < LF_PAD0 {
		return 0
	}
	n := int(data[0] & 0x0f)
	if n == 0 {
		n = 1
	}
	return min(n, len(data))
}
