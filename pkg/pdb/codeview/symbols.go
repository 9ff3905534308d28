// Package codeview provides parsing for CodeView debug symbol and type records.
package codeview

import (
	"encoding/binary"
	"fmt"

	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// Symbol record kinds (S_* values) with null-terminated names.
const (
	S_END       = 0x0006
	S_FRAMEPROC = 0x1012
	S_OBJNAME   = 0x1101
	S_THUNK32   = 0x1102
	S_BLOCK32   = 0x1103
	S_LABEL32   = 0x1105
	S_REGISTER  = 0x1106
	S_CONSTANT  = 0x1107
	S_UDT       = 0x1108
	S_BPREL32   = 0x110b
	S_LDATA32   = 0x110c
	S_GDATA32   = 0x110d
	S_PUB32     = 0x110e
	S_LPROC32   = 0x110f
	S_GPROC32   = 0x1110
	S_REGREL32  = 0x1111
	S_LTHREAD32 = 0x1112
	S_GTHREAD32 = 0x1113
	S_COMPILE2  = 0x1116
	S_LMANDATA  = 0x111c
	S_GMANDATA  = 0x111d

	S_UNAMESPACE  = 0x1124
	S_PROCREF     = 0x1125
	S_DATAREF     = 0x1126
	S_LPROCREF    = 0x1127
	S_TRAMPOLINE  = 0x112c
	S_MANCONSTANT = 0x112d
	S_SECTION     = 0x1136
	S_COFFGROUP   = 0x1137
	S_EXPORT      = 0x1138
	S_COMPILE3    = 0x113c
	S_ENVBLOCK    = 0x113d
	S_LOCAL       = 0x113e

	S_LPROC32_ID     = 0x1146
	S_GPROC32_ID     = 0x1147
	S_BUILDINFO      = 0x114c
	S_INLINESITE     = 0x114d
	S_INLINESITE_END = 0x114e
	S_PROC_ID_END    = 0x114f
	S_FILESTATIC     = 0x1153
	S_LPROC32_DPC    = 0x1155
	S_LPROC32_DPC_ID = 0x1156
	S_HEAPALLOCSITE  = 0x115e
)

// CVSignatureC13 opens every module symbol stream.
const CVSignatureC13 = 4

// Public symbol flags.
const (
	CVPubCode     = 0x01
	CVPubFunction = 0x02
	CVPubManaged  = 0x04
	CVPubMSIL     = 0x08
)

// SymbolRecord is a raw CodeView symbol record.
type SymbolRecord struct {
	Offset uint32 // offset of the record's length field in its stream
	Kind   uint16
	Data   []byte
}

// ProcSym is a procedure symbol (S_GPROC32, S_LPROC32 and the _ID forms).
type ProcSym struct {
	Parent    uint32
	End       uint32
	Next      uint32
	Length    uint32
	DbgStart  uint32
	DbgEnd    uint32
	TypeIndex uint32 // function type, or an IPI id for _ID records
	Offset    uint32
	Segment   uint16
	Flags     uint8
	Name      string
}

// DataSym is a data symbol (S_GDATA32, S_LDATA32, S_GTHREAD32, S_LTHREAD32).
type DataSym struct {
	TypeIndex uint32
	Offset    uint32
	Segment   uint16
	Name      string
}

// UDTSym names a user-defined type (S_UDT).
type UDTSym struct {
	TypeIndex uint32
	Name      string
}

// PubSym is a public symbol (S_PUB32).
type PubSym struct {
	Flags   uint32
	Offset  uint32
	Segment uint16
	Name    string
}

// ConstantSym is a named constant (S_CONSTANT).
type ConstantSym struct {
	TypeIndex uint32
	Value     uint64
	Name      string
}

// RefSym points at a procedure in a module stream (S_PROCREF, S_LPROCREF).
type RefSym struct {
	SumName   uint32
	SymOffset uint32
	Module    uint16 // 1-based module index
	Name      string
}

const (
	procFixedSize  = 35
	dataFixedSize  = 10
	pubFixedSize   = 10
	refFixedSize   = 10
	udtFixedSize   = 4
	constFixedSize = 4
)

// ParseSymbols splits a symbol record stream into records.
func ParseSymbols(data []byte) ([]SymbolRecord, error) {
	return parseRecords(data, 0)
}

// ParseModuleSymbols parses a module stream's symbol substream of size
// symBytes, which begins with the C13 signature.
func ParseModuleSymbols(data []byte, symBytes uint32) ([]SymbolRecord, error) {
	if int64(symBytes) > int64(len(data)) {
		return nil, fmt.Errorf("module symbols (%d bytes) overrun stream of %d bytes", symBytes, len(data))
	}
	data = data[:symBytes]
	if len(data) < 4 {
		return nil, nil
	}
	if sig := binary.LittleEndian.Uint32(data); sig != CVSignatureC13 {
		return nil, fmt.Errorf("unsupported module symbol signature %d", sig)
	}
	return parseRecords(data, 4)
}

func parseRecords(data []byte, offset int) ([]SymbolRecord, error) {
	var symbols []SymbolRecord
	for offset+4 <= len(data) {
		recLen := int(binary.LittleEndian.Uint16(data[offset:]))
		if recLen < 2 || offset+2+recLen > len(data) {
			return symbols, fmt.Errorf("symbol record at %d has bad length %d", offset, recLen)
		}
		symbols = append(symbols, SymbolRecord{
			Offset: uint32(offset),
			Kind:   binary.LittleEndian.Uint16(data[offset+2:]),
			Data:   data[offset+4 : offset+2+recLen],
		})
		offset += 2 + recLen
	}
	return symbols, nil
}

func tooSmall(what string, data []byte, need int) error {
	if len(data) < need {
		return fmt.Errorf("%s symbol data too small: %d bytes", what, len(data))
	}
	return nil
}

// ParseProcSym parses a procedure symbol record.
func ParseProcSym(data []byte) (*ProcSym, error) {
	if err := tooSmall("proc", data, procFixedSize); err != nil {
		return nil, err
	}
	proc := &ProcSym{
		Parent:    binary.LittleEndian.Uint32(data[0:]),
		End:       binary.LittleEndian.Uint32(data[4:]),
		Next:      binary.LittleEndian.Uint32(data[8:]),
		Length:    binary.LittleEndian.Uint32(data[12:]),
		DbgStart:  binary.LittleEndian.Uint32(data[16:]),
		DbgEnd:    binary.LittleEndian.Uint32(data[20:]),
		TypeIndex: binary.LittleEndian.Uint32(data[24:]),
		Offset:    binary.LittleEndian.Uint32(data[28:]),
		Segment:   binary.LittleEndian.Uint16(data[32:]),
		Flags:     data[34],
	}
	proc.Name, _ = streams.ParseString(data[procFixedSize:])
	return proc, nil
}

// ParseDataSym parses a data symbol record.
func ParseDataSym(data []byte) (*DataSym, error) {
	if err := tooSmall("data", data, dataFixedSize); err != nil {
		return nil, err
	}
	sym := &DataSym{
		TypeIndex: binary.LittleEndian.Uint32(data[0:]),
		Offset:    binary.LittleEndian.Uint32(data[4:]),
		Segment:   binary.LittleEndian.Uint16(data[8:]),
	}
	sym.Name, _ = streams.ParseString(data[dataFixedSize:])
	return sym, nil
}

// ParseUDTSym parses a UDT symbol record.
func ParseUDTSym(data []byte) (*UDTSym, error) {
	if err := tooSmall("UDT", data, udtFixedSize); err != nil {
		return nil, err
	}
	udt := &UDTSym{TypeIndex: binary.LittleEndian.Uint32(data)}
	udt.Name, _ = streams.ParseString(data[udtFixedSize:])
	return udt, nil
}

// ParsePubSym parses a public symbol record.
func ParsePubSym(data []byte) (*PubSym, error) {
	if err := tooSmall("pub", data, pubFixedSize); err != nil {
		return nil, err
	}
	pub := &PubSym{
		Flags:   binary.LittleEndian.Uint32(data[0:]),
		Offset:  binary.LittleEndian.Uint32(data[4:]),
		Segment: binary.LittleEndian.Uint16(data[8:]),
	}
	pub.Name, _ = streams.ParseString(data[pubFixedSize:])
	return pub, nil
}

// ParseRefSym parses a procedure reference record.
func ParseRefSym(data []byte) (*RefSym, error) {
	if err := tooSmall("ref", data, refFixedSize); err != nil {
		return nil, err
	}
	ref := &RefSym{
		SumName:   binary.LittleEndian.Uint32(data[0:]),
		SymOffset: binary.LittleEndian.Uint32(data[4:]),
		Module:    binary.LittleEndian.Uint16(data[8:]),
	}
	ref.Name, _ = streams.ParseString(data[refFixedSize:])
	return ref, nil
}

// ParseConstantSym parses a constant symbol record.
func ParseConstantSym(data []byte) (*ConstantSym, error) {
	if err := tooSmall("constant", data, constFixedSize+2); err != nil {
		return nil, err
	}
	c := &ConstantSym{TypeIndex: binary.LittleEndian.Uint32(data)}
	val, n := streams.ParseNumeric(data[constFixedSize:])
	if n == 0 {
		return nil, fmt.Errorf("constant symbol has malformed numeric leaf")
	}
	c.Value = val
	c.Name, _ = streams.ParseString(data[constFixedSize+n:])
	return c, nil
}

var symbolNames = map[uint16]string{
	S_END:            "S_END",
	S_FRAMEPROC:      "S_FRAMEPROC",
	S_OBJNAME:        "S_OBJNAME",
	S_THUNK32:        "S_THUNK32",
	S_BLOCK32:        "S_BLOCK32",
	S_LABEL32:        "S_LABEL32",
	S_REGISTER:       "S_REGISTER",
	S_CONSTANT:       "S_CONSTANT",
	S_UDT:            "S_UDT",
	S_BPREL32:        "S_BPREL32",
	S_LDATA32:        "S_LDATA32",
	S_GDATA32:        "S_GDATA32",
	S_PUB32:          "S_PUB32",
	S_LPROC32:        "S_LPROC32",
	S_GPROC32:        "S_GPROC32",
	S_REGREL32:       "S_REGREL32",
	S_LTHREAD32:      "S_LTHREAD32",
	S_GTHREAD32:      "S_GTHREAD32",
	S_COMPILE2:       "S_COMPILE2",
	S_UNAMESPACE:     "S_UNAMESPACE",
	S_PROCREF:        "S_PROCREF",
	S_DATAREF:        "S_DATAREF",
	S_LPROCREF:       "S_LPROCREF",
	S_SECTION:        "S_SECTION",
	S_COFFGROUP:      "S_COFFGROUP",
	S_EXPORT:         "S_EXPORT",
	S_COMPILE3:       "S_COMPILE3",
	S_ENVBLOCK:       "S_ENVBLOCK",
	S_LOCAL:          "S_LOCAL",
	S_LPROC32_ID:     "S_LPROC32_ID",
	S_GPROC32_ID:     "S_GPROC32_ID",
	S_BUILDINFO:      "S_BUILDINFO",
	S_INLINESITE:     "S_INLINESITE",
	S_INLINESITE_END: "S_INLINESITE_END",
	S_PROC_ID_END:    "S_PROC_ID_END",
	S_FILESTATIC:     "S_FILESTATIC",
	S_HEAPALLOCSITE:  "S_HEAPALLOCSITE",
}

// SymbolKindName returns the name for a symbol kind constant.
func SymbolKindName(kind uint16) string {
	if name, ok := symbolNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("S_0x%04x", kind)
}

// IsProcSymbol returns true if the kind is a procedure symbol.
func IsProcSymbol(kind uint16) bool {
	switch kind {
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID, S_LPROC32_DPC, S_LPROC32_DPC_ID:
		return true
	}
	return false
}

// IsDataSymbol returns true if the kind is a data symbol.
func IsDataSymbol(kind uint16) bool {
	switch kind {
	case S_GDATA32, S_LDATA32, S_GMANDATA, S_LMANDATA, S_GTHREAD32, S_LTHREAD32:
		return true
	}
	return false
}

// IsGlobalSymbol returns true if the symbol has global linkage.
func IsGlobalSymbol(kind uint16) bool {
	switch kind {
	case S_GPROC32, S_GPROC32_ID, S_GDATA32, S_GMANDATA, S_GTHREAD32, S_PUB32:
		return true
	}
	return false
}

// IsThreadLocal returns true for thread-local data symbols.
func IsThreadLocal(kind uint16) bool {
	return kind == S_GTHREAD32 || kind == S_LTHREAD32
}
