package typedesc

import (
	"fmt"
	"strings"
)

// SymbolTag classifies a node reported by a debug-information provider.
// The values follow the DIA SymTagEnum numbering.
type SymbolTag uint32

const (
	TagNull SymbolTag = iota
	TagExe
	TagCompiland
	TagCompilandDetails
	TagCompilandEnv
	TagFunction
	TagBlock
	TagData
	TagAnnotation
	TagLabel
	TagPublicSymbol
	TagUDT
	TagEnum
	TagFunctionType
	TagPointerType
	TagArrayType
	TagBaseType
	TagTypedef
	TagBaseClass
	TagFriend
	TagFunctionArgType
	TagFuncDebugStart
	TagFuncDebugEnd
	TagUsingNamespace
	TagVTableShape
	TagVTable
	TagCustom
	TagThunk
	TagCustomType
	TagManagedType
	TagDimension
	TagCallSite
	TagInlineSite
	TagBaseInterface
	TagVectorType
	TagMatrixType
	TagHLSLType
	TagCaller
	TagCallee
	TagExport
	TagHeapAllocationSite
	TagCoffGroup
	TagMax
)

var tagNames = [...]string{
	"Null", "Exe", "Compiland", "CompilandDetails", "CompilandEnv",
	"Function", "Block", "Data", "Annotation", "Label", "PublicSymbol",
	"UDT", "Enum", "FunctionType", "PointerType", "ArrayType", "BaseType",
	"Typedef", "BaseClass", "Friend", "FunctionArgType", "FuncDebugStart",
	"FuncDebugEnd", "UsingNamespace", "VTableShape", "VTable", "Custom",
	"Thunk", "CustomType", "ManagedType", "Dimension", "CallSite",
	"InlineSite", "BaseInterface", "VectorType", "MatrixType", "HLSLType",
	"Caller", "Callee", "Export", "HeapAllocationSite", "CoffGroup", "Max",
}

func (t SymbolTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("SymbolTag(%d)", uint32(t))
}

// SymbolFlags is the provider-reported attribute bitset of a symbol.
type SymbolFlags uint32

const (
	FlagValuePresent      SymbolFlags = 0x1
	FlagRegister          SymbolFlags = 0x8
	FlagRegisterRelative  SymbolFlags = 0x10
	FlagFrameRelative     SymbolFlags = 0x20
	FlagParameter         SymbolFlags = 0x40
	FlagLocal             SymbolFlags = 0x80
	FlagConstant          SymbolFlags = 0x100
	FlagExport            SymbolFlags = 0x200
	FlagForwarder         SymbolFlags = 0x400
	FlagFunction          SymbolFlags = 0x800
	FlagVirtual           SymbolFlags = 0x1000
	FlagThunk             SymbolFlags = 0x2000
	FlagTLSRelative       SymbolFlags = 0x4000
	FlagSlot              SymbolFlags = 0x8000
	FlagILRelative        SymbolFlags = 0x10000
	FlagMetadata          SymbolFlags = 0x20000
	FlagClrToken          SymbolFlags = 0x40000
	FlagNull              SymbolFlags = 0x80000
	FlagFunctionNoReturn  SymbolFlags = 0x100000
	FlagSyntheticZeroBase SymbolFlags = 0x200000
	FlagPublicCode        SymbolFlags = 0x400000
)

var flagNames = []struct {
	flag SymbolFlags
	name string
}{
	{FlagValuePresent, "ValuePresent"},
	{FlagRegister, "Register"},
	{FlagRegisterRelative, "RegisterRelative"},
	{FlagFrameRelative, "FrameRelative"},
	{FlagParameter, "Parameter"},
	{FlagLocal, "Local"},
	{FlagConstant, "Constant"},
	{FlagExport, "Export"},
	{FlagForwarder, "Forwarder"},
	{FlagFunction, "Function"},
	{FlagVirtual, "Virtual"},
	{FlagThunk, "Thunk"},
	{FlagTLSRelative, "TLSRelative"},
	{FlagSlot, "Slot"},
	{FlagILRelative, "ILRelative"},
	{FlagMetadata, "Metadata"},
	{FlagClrToken, "ClrToken"},
	{FlagNull, "Null"},
	{FlagFunctionNoReturn, "FunctionNoReturn"},
	{FlagSyntheticZeroBase, "SyntheticZeroBase"},
	{FlagPublicCode, "PublicCode"},
}

// Has reports whether every bit of f is set.
func (s SymbolFlags) Has(f SymbolFlags) bool { return s&f == f }

func (s SymbolFlags) String() string {
	if s == 0 {
		return "None"
	}
	var parts []string
	rest := s
	for _, fn := range flagNames {
		if s&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// UdtKind distinguishes the flavours of user-defined aggregates.
type UdtKind int

const (
	UdtStruct UdtKind = iota
	UdtClass
	UdtUnion
	UdtInterface
	UdtUnknown UdtKind = 99
)

func (k UdtKind) String() string {
	switch k {
	case UdtStruct:
		return "struct"
	case UdtClass:
		return "class"
	case UdtUnion:
		return "union"
	case UdtInterface:
		return "interface"
	default:
		return "unknown"
	}
}

// BasicType is the DIA basic type of a TagBaseType node.
type BasicType int

const (
	BasicNoType   BasicType = 0
	BasicVoid     BasicType = 1
	BasicChar     BasicType = 2
	BasicWChar    BasicType = 3
	BasicInt      BasicType = 6
	BasicUInt     BasicType = 7
	BasicFloat    BasicType = 8
	BasicBCD      BasicType = 9
	BasicBool     BasicType = 10
	BasicLong     BasicType = 13
	BasicULong    BasicType = 14
	BasicCurrency BasicType = 25
	BasicDate     BasicType = 26
	BasicVariant  BasicType = 27
	BasicComplex  BasicType = 28
	BasicBit      BasicType = 29
	BasicBSTR     BasicType = 30
	BasicHresult  BasicType = 31
)

// DataKind describes how a TagData node is stored.
type DataKind int

const (
	DataUnknown DataKind = iota
	DataLocal
	DataStaticLocal
	DataParam
	DataObjectPtr
	DataFileStatic
	DataGlobal
	DataMember
	DataStaticMember
	DataConstant
)

func (k DataKind) String() string {
	switch k {
	case DataLocal:
		return "local"
	case DataStaticLocal:
		return "static local"
	case DataParam:
		return "param"
	case DataObjectPtr:
		return "this"
	case DataFileStatic:
		return "file static"
	case DataGlobal:
		return "global"
	case DataMember:
		return "member"
	case DataStaticMember:
		return "static member"
	case DataConstant:
		return "constant"
	default:
		return "unknown"
	}
}
