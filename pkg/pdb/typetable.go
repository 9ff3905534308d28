package pdb

import (
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/text/cases"

	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

// maxAliasDepth bounds chains of forward references and modifiers.
const maxAliasDepth = 16

// typeNode is one node of the type tree: a TPI type, or a child of an
// aggregate (member, base class, method, nested type, enumerator).
type typeNode struct {
	tag   typedesc.SymbolTag
	name  string
	flags typedesc.SymbolFlags
	size  int // byte size reported with the symbol

	typeID    uint32
	hasTypeID bool
	length    uint64
	hasLength bool
	offset    uint32
	hasOffset bool
	value     typedesc.Variant
	hasValue  bool
	bitPos    int
	hasBitPos bool
	count     int
	hasCount  bool

	udt      typedesc.UdtKind
	dataKind typedesc.DataKind
	baseType typedesc.BasicType
}

// TypeTable presents the TPI stream as a tree of nodes queried by index.
// Type nodes keep their TPI index; children of structures, unions and enums
// get synthetic indices starting at the stream's TypeIndexEnd. Forward
// references, modifiers and bitfields are aliases of the type they refer
// to.
//
// A TypeTable is immutable once built and safe for concurrent use.
type TypeTable struct {
	resolver *codeview.TypeResolver
	nodes    map[uint32]*typeNode
	children map[uint32][]uint32
	alias    map[uint32]uint32
	byName   map[string]uint32
	byFolded map[string]uint32
	named    []uint32
	first    uint32 // first child index
	next     uint32
}

// NewTypeTable builds the table for a TPI stream. A nil stream yields a
// table holding only the built-in types.
func NewTypeTable(tpi *streams.TPIStream) *TypeTable {
	t := &TypeTable{
		resolver: codeview.NewTypeResolver(tpi),
		nodes:    make(map[uint32]*typeNode),
		children: make(map[uint32][]uint32),
		alias:    make(map[uint32]uint32),
		byName:   make(map[string]uint32),
		byFolded: make(map[string]uint32),
		first:    streams.TypeIndexBegin,
		next:     streams.TypeIndexBegin,
	}
	if tpi == nil {
		return t
	}
	t.next = max(tpi.Header.TypeIndexEnd, streams.TypeIndexBegin)
	t.first = t.next

	fold := cases.Fold()
	defs := make(map[string]uint32)
	for i := range tpi.TypeRecords {
		rec := &tpi.TypeRecords[i]
		if !codeview.IsAggregate(rec.Kind) {
			continue
		}
		a, err := codeview.ParseAggregate(rec)
		if err != nil || a.IsForwardRef() || a.Name == "" {
			continue
		}
		if !hasKey(defs, aggregateKey(a)) {
			defs[aggregateKey(a)] = rec.Index
		}
		if !hasKey(t.byName, a.Name) {
			t.byName[a.Name] = rec.Index
			t.named = append(t.named, rec.Index)
		}
		if key := fold.String(a.Name); !hasKey(t.byFolded, key) {
			t.byFolded[key] = rec.Index
		}
	}

	var aggregates []*codeview.Aggregate
	var owners []uint32
	for i := range tpi.TypeRecords {
		rec := &tpi.TypeRecords[i]
		if a := t.addRecord(rec, defs); a != nil {
			aggregates = append(aggregates, a)
			owners = append(owners, rec.Index)
		}
	}
	// Children are resolved once every type node exists, since members may
	// refer to types recorded after their parent.
	for i, a := range aggregates {
		t.addChildren(owners[i], a)
	}
	return t
}

func hasKey(m map[string]uint32, k string) bool {
	_, ok := m[k]
	return ok
}

func aggregateKey(a *codeview.Aggregate) string {
	if a.UniqueName != "" {
		return a.UniqueName
	}
	return a.Name
}

// addRecord creates the node for one TPI record. It returns the decoded
// aggregate when the record is a definition whose children still need to be
// added.
func (t *TypeTable) addRecord(rec *streams.TypeRecord, defs map[string]uint32) *codeview.Aggregate {
	switch rec.Kind {
	case streams.LF_MODIFIER:
		if m, err := codeview.ParseModifier(rec); err == nil {
			t.alias[rec.Index] = m.Type
		}
		return nil
	case streams.LF_BITFIELD:
		if b, err := codeview.ParseBitfield(rec); err == nil {
			t.alias[rec.Index] = b.Type
		}
		return nil
	case streams.LF_POINTER:
		p, err := codeview.ParsePointer(rec)
		if err != nil {
			return nil
		}
		t.nodes[rec.Index] = &typeNode{
			tag:    typedesc.TagPointerType,
			name:   t.resolver.ResolveType(rec.Index),
			typeID: p.Referent, hasTypeID: true,
			length: uint64(p.Size()), hasLength: true,
			size: p.Size(),
		}
		return nil
	case streams.LF_ARRAY:
		a, err := codeview.ParseArray(rec)
		if err != nil {
			return nil
		}
		n := &typeNode{
			tag:    typedesc.TagArrayType,
			name:   t.resolver.ResolveType(rec.Index),
			typeID: a.ElemType, hasTypeID: true,
			length: a.Size, hasLength: true,
			size: sizeInt(a.Size),
		}
		if elem, ok := t.resolver.TypeSize(a.ElemType); ok && elem > 0 {
			n.count, n.hasCount = sizeInt(a.Size/elem), true
		}
		t.nodes[rec.Index] = n
		return nil
	case streams.LF_PROCEDURE, streams.LF_MFUNCTION:
		p, err := codeview.ParseProcedure(rec)
		if err != nil {
			return nil
		}
		t.nodes[rec.Index] = &typeNode{
			tag:    typedesc.TagFunctionType,
			name:   t.resolver.ResolveType(rec.Index),
			typeID: p.ReturnType, hasTypeID: true,
		}
		return nil
	}

	if !codeview.IsAggregate(rec.Kind) {
		return nil
	}
	a, err := codeview.ParseAggregate(rec)
	if err != nil {
		return nil
	}
	if a.IsForwardRef() {
		if def, ok := defs[aggregateKey(a)]; ok {
			t.alias[rec.Index] = def
			return nil
		}
	}

	n := &typeNode{name: a.Name}
	if a.IsEnum() {
		n.tag = typedesc.TagEnum
		n.typeID, n.hasTypeID = a.Underlying, true
		if size, ok := t.resolver.TypeSize(a.Underlying); ok {
			n.length, n.hasLength = size, true
		}
	} else {
		n.tag = typedesc.TagUDT
		n.udt = udtKind(a.Kind)
		n.length, n.hasLength = a.Size, true
	}
	n.size = sizeInt(n.length)
	t.nodes[rec.Index] = n
	if a.IsForwardRef() {
		return nil
	}
	return a
}

func udtKind(leaf uint16) typedesc.UdtKind {
	switch leaf {
	case streams.LF_STRUCTURE:
		return typedesc.UdtStruct
	case streams.LF_CLASS:
		return typedesc.UdtClass
	case streams.LF_UNION:
		return typedesc.UdtUnion
	case streams.LF_INTERFACE:
		return typedesc.UdtInterface
	}
	return typedesc.UdtUnknown
}

// addChildren allocates child nodes for the field list of an aggregate
// definition, in declaration order. A field list that fails to decode part
// way keeps the entries read so far.
func (t *TypeTable) addChildren(owner uint32, a *codeview.Aggregate) {
	if a.FieldList == 0 {
		return
	}
	fields, _ := t.resolver.Fields(a.FieldList)
	underlying := t.sizeOf(a.Underlying)

	var kids []uint32
	for _, f := range fields {
		n := t.fieldNode(owner, a, f, underlying)
		if n == nil {
			continue
		}
		idx := t.next
		t.next++
		t.nodes[idx] = n
		kids = append(kids, idx)
	}
	t.children[owner] = kids
}

func (t *TypeTable) fieldNode(owner uint32, a *codeview.Aggregate, f codeview.Field, underlying int) *typeNode {
	switch f.Leaf {
	case streams.LF_BCLASS, streams.LF_VBCLASS, streams.LF_IVBCLASS:
		n := &typeNode{
			tag:    typedesc.TagBaseClass,
			name:   t.resolver.ResolveType(f.TypeIndex),
			typeID: f.TypeIndex, hasTypeID: true,
			size: t.sizeOf(f.TypeIndex),
		}
		if f.Leaf == streams.LF_BCLASS {
			n.offset, n.hasOffset = offsetOf(f.Offset)
		}
		n.length, n.hasLength = uint64(n.size), true
		return n
	case streams.LF_MEMBER:
		n := &typeNode{
			tag:      typedesc.TagData,
			name:     f.Name,
			dataKind: typedesc.DataMember,
			typeID:   f.TypeIndex, hasTypeID: true,
			size: t.sizeOf(f.TypeIndex),
		}
		n.offset, n.hasOffset = offsetOf(f.Offset)
		n.length, n.hasLength = uint64(n.size), true
		if rec := t.resolver.Record(f.TypeIndex); rec != nil && rec.Kind == streams.LF_BITFIELD {
			if b, err := codeview.ParseBitfield(rec); err == nil {
				n.typeID = b.Type
				n.bitPos, n.hasBitPos = int(b.Position), true
				n.length = uint64(b.Length)
			}
		}
		return n
	case streams.LF_STMEMBER:
		return &typeNode{
			tag:      typedesc.TagData,
			name:     f.Name,
			dataKind: typedesc.DataStaticMember,
			typeID:   f.TypeIndex, hasTypeID: true,
			size: t.sizeOf(f.TypeIndex),
		}
	case streams.LF_ONEMETHOD, streams.LF_METHOD:
		return &typeNode{
			tag:    typedesc.TagFunction,
			name:   f.Name,
			flags:  typedesc.FlagFunction,
			typeID: f.TypeIndex, hasTypeID: true,
		}
	case streams.LF_NESTTYPE:
		return &typeNode{
			tag:    typedesc.TagTypedef,
			name:   f.Name,
			typeID: f.TypeIndex, hasTypeID: true,
			size: t.sizeOf(f.TypeIndex),
		}
	case streams.LF_ENUMERATE:
		if !a.IsEnum() {
			return nil
		}
		return &typeNode{
			tag:      typedesc.TagData,
			name:     f.Name,
			flags:    typedesc.FlagConstant | typedesc.FlagValuePresent,
			dataKind: typedesc.DataConstant,
			typeID:   owner, hasTypeID: true,
			value: enumVariant(f.Value, underlying), hasValue: true,
			size: underlying,
		}
	}
	return nil
}

// enumVariant stores an enumerator with the width of its enum's underlying
// type. Values arrive sign-extended to 64 bits.
func enumVariant(v uint64, size int) typedesc.Variant {
	switch size {
	case 1:
		return typedesc.Int8Variant(uint8(v))
	case 2:
		return typedesc.Int16Variant(int16(v))
	case 8:
		return typedesc.Int64Variant(int64(v))
	default:
		return typedesc.Int32Variant(int32(v))
	}
}

func offsetOf(off uint64) (uint32, bool) {
	v, err := safecast.Conv[uint32](off)
	return v, err == nil
}

func sizeInt(n uint64) int {
	v, err := safecast.Conv[int](n)
	if err != nil {
		return 0
	}
	return v
}

// canonical follows forward-reference, modifier and bitfield aliases.
func (t *TypeTable) canonical(index uint32) uint32 {
	for range maxAliasDepth {
		next, ok := t.alias[index]
		if !ok {
			break
		}
		index = next
	}
	return index
}

func (t *TypeTable) sizeOf(index uint32) int {
	if n, ok := t.node(index); ok && n.hasLength {
		return sizeInt(n.length)
	}
	size, _ := t.resolver.TypeSize(t.canonical(index))
	return sizeInt(size)
}

func (t *TypeTable) node(index uint32) (*typeNode, bool) {
	index = t.canonical(index)
	if n, ok := t.nodes[index]; ok {
		return n, true
	}
	if index < streams.TypeIndexBegin {
		return builtinNode(index)
	}
	return nil, false
}

func builtinNode(index uint32) (*typeNode, bool) {
	size, ok := streams.BuiltinTypeSize(index)
	if !ok {
		return nil, false
	}
	n := &typeNode{
		name:   streams.GetBuiltinTypeName(index),
		length: uint64(size), hasLength: true,
		size: size,
	}
	if streams.BuiltinMode(index) != streams.TM_DIRECT {
		n.tag = typedesc.TagPointerType
		n.typeID, n.hasTypeID = streams.BuiltinKind(index), true
		return n, true
	}
	n.tag = typedesc.TagBaseType
	n.baseType = basicType(streams.BuiltinKind(index))
	return n, true
}

func basicType(kind uint32) typedesc.BasicType {
	switch kind {
	case streams.T_VOID:
		return typedesc.BasicVoid
	case streams.T_CHAR, streams.T_RCHAR, streams.T_CHAR8:
		return typedesc.BasicChar
	case streams.T_WCHAR, streams.T_CHAR16, streams.T_CHAR32:
		return typedesc.BasicWChar
	case streams.T_SHORT, streams.T_QUAD, streams.T_OCT,
		streams.T_INT1, streams.T_INT2, streams.T_INT4, streams.T_INT8, streams.T_INT16:
		return typedesc.BasicInt
	case streams.T_UCHAR, streams.T_USHORT, streams.T_UQUAD, streams.T_UOCT,
		streams.T_UINT1, streams.T_UINT2, streams.T_UINT4, streams.T_UINT8, streams.T_UINT16:
		return typedesc.BasicUInt
	case streams.T_LONG:
		return typedesc.BasicLong
	case streams.T_ULONG:
		return typedesc.BasicULong
	case streams.T_BOOL08, streams.T_BOOL16, streams.T_BOOL32, streams.T_BOOL64:
		return typedesc.BasicBool
	case streams.T_REAL16, streams.T_REAL32, streams.T_REAL48, streams.T_REAL64, streams.T_REAL80, streams.T_REAL128:
		return typedesc.BasicFloat
	case streams.T_HRESULT:
		return typedesc.BasicHresult
	case streams.T_CURRENCY:
		return typedesc.BasicCurrency
	}
	return typedesc.BasicNoType
}

func notFound(index uint32) error {
	return fmt.Errorf("type index %#x: %w", index, typedesc.ErrNotFound)
}

func unsupported(index uint32, attr string) error {
	return fmt.Errorf("type index %#x has no %s: %w", index, attr, typedesc.ErrUnsupported)
}

// Resolver returns the name resolver the table was built on.
func (t *TypeTable) Resolver() *codeview.TypeResolver { return t.resolver }

// Lookup finds a named structure, class, union or enum definition. The
// first definition of a name wins.
func (t *TypeTable) Lookup(name string, caseInsensitive bool) (uint32, bool) {
	if idx, ok := t.byName[name]; ok {
		return idx, true
	}
	if !caseInsensitive {
		return 0, false
	}
	idx, ok := t.byFolded[cases.Fold().String(name)]
	return idx, ok
}

// Named lists the named aggregate definitions in stream order.
func (t *TypeTable) Named() []uint32 {
	return append([]uint32(nil), t.named...)
}

// ChildrenCount returns the number of children of a node. Nodes without a
// field list have none.
func (t *TypeTable) ChildrenCount(index uint32) (int, error) {
	if _, ok := t.node(index); !ok {
		return 0, notFound(index)
	}
	return len(t.children[t.canonical(index)]), nil
}

// FindChildren returns at most capacity children of a node in declaration
// order.
func (t *TypeTable) FindChildren(index uint32, capacity int) ([]uint32, error) {
	if _, ok := t.node(index); !ok {
		return nil, notFound(index)
	}
	kids := t.children[t.canonical(index)]
	if capacity < 0 {
		capacity = 0
	}
	return append([]uint32(nil), kids[:min(capacity, len(kids))]...), nil
}

// Symbol describes a node. Type nodes report their own index as TypeIndex;
// children report the index of their type.
func (t *TypeTable) Symbol(index uint32) (typedesc.SymbolInfo, error) {
	n, ok := t.node(index)
	if !ok {
		return typedesc.SymbolInfo{}, notFound(index)
	}
	sym := typedesc.SymbolInfo{
		TypeIndex: index,
		Index:     index,
		Size:      n.size,
		Flags:     n.flags,
		Tag:       n.tag,
		Name:      typedesc.TruncateName(n.name),
	}
	if index >= t.first {
		sym.TypeIndex = n.typeID
	}
	if n.hasValue {
		sym.Value = n.value.Decode(n.size)
	}
	return sym, nil
}

func (t *TypeTable) Length(index uint32) (uint64, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return 0, notFound(index)
	case !n.hasLength:
		return 0, unsupported(index, "length")
	}
	return n.length, nil
}

func (t *TypeTable) Offset(index uint32) (uint32, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return 0, notFound(index)
	case !n.hasOffset:
		return 0, unsupported(index, "offset")
	}
	return n.offset, nil
}

func (t *TypeTable) Tag(index uint32) (typedesc.SymbolTag, error) {
	n, ok := t.node(index)
	if !ok {
		return typedesc.TagNull, notFound(index)
	}
	return n.tag, nil
}

func (t *TypeTable) ConstantValue(index uint32) (typedesc.Variant, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return typedesc.Variant{}, notFound(index)
	case !n.hasValue:
		return typedesc.Variant{}, unsupported(index, "value")
	}
	return n.value, nil
}

func (t *TypeTable) Name(index uint32) (string, error) {
	n, ok := t.node(index)
	if !ok {
		return "", notFound(index)
	}
	return n.name, nil
}

func (t *TypeTable) TypeID(index uint32) (uint32, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return 0, notFound(index)
	case !n.hasTypeID:
		return 0, unsupported(index, "type")
	}
	return n.typeID, nil
}

func (t *TypeTable) UdtKind(index uint32) (typedesc.UdtKind, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return typedesc.UdtUnknown, notFound(index)
	case n.tag != typedesc.TagUDT:
		return typedesc.UdtUnknown, unsupported(index, "udt kind")
	}
	return n.udt, nil
}

func (t *TypeTable) BaseType(index uint32) (typedesc.BasicType, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return typedesc.BasicNoType, notFound(index)
	case n.tag != typedesc.TagBaseType:
		return typedesc.BasicNoType, unsupported(index, "base type")
	}
	return n.baseType, nil
}

func (t *TypeTable) DataKind(index uint32) (typedesc.DataKind, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return typedesc.DataUnknown, notFound(index)
	case n.tag != typedesc.TagData:
		return typedesc.DataUnknown, unsupported(index, "data kind")
	}
	return n.dataKind, nil
}

func (t *TypeTable) BitPosition(index uint32) (int, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return 0, notFound(index)
	case !n.hasBitPos:
		return 0, unsupported(index, "bit position")
	}
	return n.bitPos, nil
}

func (t *TypeTable) Count(index uint32) (int, error) {
	n, ok := t.node(index)
	switch {
	case !ok:
		return 0, notFound(index)
	case !n.hasCount:
		return 0, unsupported(index, "element count")
	}
	return n.count, nil
}
