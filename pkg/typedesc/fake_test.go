package typedesc_test

import (
	"errors"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

var errFake = errors.New("query failed")

type fakeType struct {
	count    int
	countErr bool
	length   uint64
	noLength bool
	children []uint32
	findErr  bool
}

type fakeChild struct {
	sym      typedesc.SymbolInfo
	symErr   bool
	offset   uint32
	hasOff   bool
	tag      typedesc.SymbolTag
	tagErr   bool
	value    typedesc.Variant
	hasValue bool
}

// fakeProvider serves one module base from in-memory tables.
type fakeProvider struct {
	base     uint64
	types    map[uint32]*fakeType
	children map[uint32]*fakeChild

	findCapacity int
}

func newFakeProvider(base uint64) *fakeProvider {
	return &fakeProvider{
		base:     base,
		types:    make(map[uint32]*fakeType),
		children: make(map[uint32]*fakeChild),
	}
}

func (f *fakeProvider) member(index uint32, name string, offset uint32, size int) {
	f.children[index] = &fakeChild{
		sym:    typedesc.SymbolInfo{Name: name, Size: size, TypeIndex: 0x74, Tag: typedesc.TagData},
		offset: offset,
		hasOff: true,
		tag:    typedesc.TagData,
	}
}

func (f *fakeProvider) constant(index uint32, name string, size int, v typedesc.Variant) {
	f.children[index] = &fakeChild{
		sym:      typedesc.SymbolInfo{Name: name, Size: size, Tag: typedesc.TagData, Flags: typedesc.FlagConstant},
		value:    v,
		hasValue: true,
	}
}

func (f *fakeProvider) typ(base uint64, index uint32) (*fakeType, error) {
	if base != f.base {
		return nil, typedesc.ErrNotFound
	}
	t, ok := f.types[index]
	if !ok {
		return nil, typedesc.ErrNotFound
	}
	return t, nil
}

func (f *fakeProvider) child(base uint64, index uint32) (*fakeChild, error) {
	if base != f.base {
		return nil, typedesc.ErrNotFound
	}
	c, ok := f.children[index]
	if !ok {
		return nil, typedesc.ErrNotFound
	}
	return c, nil
}

func (f *fakeProvider) ChildrenCount(base uint64, index uint32) (int, error) {
	t, err := f.typ(base, index)
	if err != nil {
		return 0, err
	}
	if t.countErr {
		return 0, errFake
	}
	return t.count, nil
}

func (f *fakeProvider) Length(base uint64, index uint32) (uint64, error) {
	t, err := f.typ(base, index)
	if err != nil {
		return 0, err
	}
	if t.noLength {
		return 0, errFake
	}
	return t.length, nil
}

func (f *fakeProvider) FindChildren(base uint64, index uint32, capacity int) ([]uint32, error) {
	t, err := f.typ(base, index)
	if err != nil {
		return nil, err
	}
	f.findCapacity = capacity
	if t.findErr {
		return nil, errFake
	}
	out := t.children
	if len(out) > capacity {
		out = out[:capacity]
	}
	return append([]uint32(nil), out...), nil
}

func (f *fakeProvider) SymbolByIndex(base uint64, index uint32) (typedesc.SymbolInfo, error) {
	c, err := f.child(base, index)
	if err != nil {
		return typedesc.SymbolInfo{}, err
	}
	if c.symErr {
		return typedesc.SymbolInfo{}, errFake
	}
	sym := c.sym
	sym.Index = index
	sym.ModuleBase = base
	return sym, nil
}

func (f *fakeProvider) Offset(base uint64, index uint32) (uint32, error) {
	c, err := f.child(base, index)
	if err != nil {
		return 0, err
	}
	if !c.hasOff {
		return 0, typedesc.ErrUnsupported
	}
	return c.offset, nil
}

func (f *fakeProvider) Tag(base uint64, index uint32) (typedesc.SymbolTag, error) {
	c, err := f.child(base, index)
	if err != nil {
		return typedesc.TagNull, err
	}
	if c.tagErr {
		return typedesc.TagNull, errFake
	}
	return c.tag, nil
}

func (f *fakeProvider) ConstantValue(base uint64, index uint32) (typedesc.Variant, error) {
	c, err := f.child(base, index)
	if err != nil {
		return typedesc.Variant{}, err
	}
	if !c.hasValue {
		return typedesc.Variant{}, typedesc.ErrUnsupported
	}
	return c.value, nil
}
