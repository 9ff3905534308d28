package typedesc

import "errors"

var (
	// ErrNotFound is returned by providers for indices or bases they do not know.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnsupported is returned when a node has no value for the requested attribute.
	ErrUnsupported = errors.New("attribute not available for symbol")
)

// Provider answers per-attribute queries about nodes of a module's debug
// information. Every query is scoped by the module base address and each may
// fail independently of the others.
type Provider interface {
	ChildrenCount(base uint64, index uint32) (int, error)
	Length(base uint64, index uint32) (uint64, error)
	// FindChildren lists at most capacity child indices in declaration order.
	FindChildren(base uint64, index uint32, capacity int) ([]uint32, error)
	SymbolByIndex(base uint64, index uint32) (SymbolInfo, error)
	Offset(base uint64, index uint32) (uint32, error)
	Tag(base uint64, index uint32) (SymbolTag, error)
	ConstantValue(base uint64, index uint32) (Variant, error)
}

// TypeInfoProvider is implemented by providers that expose the remaining
// per-node type queries.
type TypeInfoProvider interface {
	Provider
	Name(base uint64, index uint32) (string, error)
	// TypeID returns the index of the node's type, e.g. a member's field type.
	TypeID(base uint64, index uint32) (uint32, error)
	UdtKind(base uint64, index uint32) (UdtKind, error)
	BaseType(base uint64, index uint32) (BasicType, error)
	DataKind(base uint64, index uint32) (DataKind, error)
	BitPosition(base uint64, index uint32) (int, error)
	// Count returns the element count of an array type.
	Count(base uint64, index uint32) (int, error)
}
