package typedesc

import "fmt"

// StructMember is one entry of a StructDescriptor: a resolved symbol plus its
// byte offset inside the owning aggregate. Enumeration constants have no
// storage and always sit at offset 0 with their decoded value attached.
type StructMember struct {
	symbol SymbolInfo
	offset int
	value  int64
	parent *StructDescriptor
}

// NewMember creates a storage member at the given offset.
func NewMember(symbol SymbolInfo, offset int) *StructMember {
	return &StructMember{symbol: symbol, offset: offset}
}

// NewConstant creates an enumeration constant member holding value.
func NewConstant(symbol SymbolInfo, value int64) *StructMember {
	return &StructMember{symbol: symbol, value: value}
}

func (m *StructMember) Symbol() SymbolInfo { return m.symbol }
func (m *StructMember) Offset() int        { return m.offset }
func (m *StructMember) Name() string       { return m.symbol.Name }
func (m *StructMember) Size() int          { return m.symbol.Size }
func (m *StructMember) TypeID() uint32     { return m.symbol.TypeIndex }
func (m *StructMember) Tag() SymbolTag     { return m.symbol.Tag }

// Value returns the decoded constant value, or zero for storage members.
// Live-memory reads belong in an ObservedValues association.
func (m *StructMember) Value() int64 { return m.value }

// IsConstant reports whether the member is an enumeration constant.
func (m *StructMember) IsConstant() bool { return m.symbol.Tag == TagEnum }

// Parent returns the descriptor the member was added to, or nil.
func (m *StructMember) Parent() *StructDescriptor { return m.parent }

// Clone returns a detached copy of the member.
func (m *StructMember) Clone() *StructMember {
	c := *m
	c.parent = nil
	return &c
}

func (m *StructMember) String() string {
	return fmt.Sprintf("%s, size=%d, offset=%d, typeid=%d tag=%s",
		m.symbol.Name, m.symbol.Size, m.offset, m.symbol.TypeIndex, m.symbol.Tag)
}
