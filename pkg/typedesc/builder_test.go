package typedesc_test

import (
	"testing"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

const testBase = 0x10000000

func memberNames(d *typedesc.StructDescriptor) []string {
	var names []string
	for _, m := range d.All() {
		names = append(names, m.Name())
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildDescriptorStruct(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 3, length: 12, children: []uint32{0x2000, 0x2001, 0x2002}}
	p.member(0x2000, "Count", 0, 4)
	p.member(0x2001, "Flags", 4, 4)
	p.member(0x2002, "Next", 8, 4)

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d == nil {
		t.Fatal("BuildDescriptor returned nil")
	}
	if d.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", d.Count())
	}
	if d.Length() != 12 {
		t.Fatalf("Length() = %d, want 12", d.Length())
	}
	for name, want := range map[string]int{"Count": 0, "Flags": 4, "Next": 8} {
		if got := d.GetOffsetOf(name); got != want {
			t.Fatalf("GetOffsetOf(%q) = %d, want %d", name, got, want)
		}
	}
	if got := d.ReportedChildren(); got != 3 {
		t.Fatalf("ReportedChildren() = %d, want 3", got)
	}
	if d.Truncated() {
		t.Fatal("Truncated() = true, want false")
	}

	m := d.At(1)
	if m.TypeID() != 0x2001 {
		t.Fatalf("TypeID() = 0x%x, want child index 0x2001", m.TypeID())
	}
	if m.Tag() != typedesc.TagData {
		t.Fatalf("Tag() = %s, want Data", m.Tag())
	}
	if m.Parent() != d {
		t.Fatal("member parent is not the descriptor it was added to")
	}
	if m.IsConstant() {
		t.Fatal("storage member reported as constant")
	}
}

func TestBuildDescriptorEnum(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1010] = &fakeType{count: 2, length: 4, children: []uint32{0x2100, 0x2101}}
	p.constant(0x2100, "Seven", 4, typedesc.Int32Variant(7))
	p.member(0x2101, "Raw", 0, 4)

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1010)
	if d == nil {
		t.Fatal("BuildDescriptor returned nil")
	}
	if got := memberNames(d); !equalStrings(got, []string{"Seven", "Raw"}) {
		t.Fatalf("members = %v, want [Seven Raw]", got)
	}
	seven := d.At(0)
	if seven.Offset() != 0 || seven.Value() != 7 {
		t.Fatalf("Seven offset=%d value=%d, want 0 and 7", seven.Offset(), seven.Value())
	}
	if seven.Tag() != typedesc.TagEnum || !seven.IsConstant() {
		t.Fatalf("Seven tag = %s, want Enum", seven.Tag())
	}
	if seven.Symbol().Value != 7 {
		t.Fatalf("Seven raw symbol value = %d, want 7", seven.Symbol().Value)
	}
	if seven.TypeID() != 0x2100 {
		t.Fatalf("Seven TypeID() = 0x%x, want 0x2100", seven.TypeID())
	}
	if raw := d.At(1); raw.Offset() != 0 || raw.IsConstant() {
		t.Fatalf("Raw offset=%d constant=%v, want storage member at 0", raw.Offset(), raw.IsConstant())
	}
}

func TestBuildDescriptorChildrenCountFails(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{countErr: true}

	if d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000); d != nil {
		t.Fatalf("BuildDescriptor = %v, want nil", d)
	}
	if d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x9999); d != nil {
		t.Fatalf("BuildDescriptor(unknown index) = %v, want nil", d)
	}
}

func TestBuildDescriptorWrongBase(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 1, length: 4, children: []uint32{0x2000}}
	p.member(0x2000, "a", 0, 4)

	if d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase+0x1000000, 0x1000); d != nil {
		t.Fatal("index resolved against a different module base")
	}
}

func TestBuildDescriptorDropsUndecodableChildren(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{
		count:    5,
		length:   16,
		children: []uint32{0x2000, 0x2001, 0x2002, 0x2003, 0x2004},
	}
	p.member(0x2000, "first", 0, 4)
	// A method: resolves as a symbol but has neither offset nor value.
	p.children[0x2001] = &fakeChild{sym: typedesc.SymbolInfo{Name: "method", Tag: typedesc.TagFunction}}
	p.member(0x2002, "second", 4, 4)
	p.children[0x2003] = &fakeChild{symErr: true, hasOff: true, offset: 8, tag: typedesc.TagData}
	p.member(0x2004, "third", 12, 4)

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d == nil {
		t.Fatal("BuildDescriptor returned nil")
	}
	if got := memberNames(d); !equalStrings(got, []string{"first", "second", "third"}) {
		t.Fatalf("members = %v, want [first second third]", got)
	}
	if d.Count() > d.ReportedChildren() {
		t.Fatalf("Count() = %d exceeds reported children %d", d.Count(), d.ReportedChildren())
	}
	if _, ok := d.GetMember("method"); ok {
		t.Fatal("undecodable child was added")
	}
	if got := d.GetOffsetOf("method"); got != -1 {
		t.Fatalf("GetOffsetOf(method) = %d, want -1", got)
	}
}

func TestBuildDescriptorTagFailureFallsBackToValue(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 2, length: 2, children: []uint32{0x2000, 0x2001}}
	p.children[0x2000] = &fakeChild{
		sym:      typedesc.SymbolInfo{Name: "odd", Size: 2},
		hasOff:   true,
		offset:   6,
		tagErr:   true,
		value:    typedesc.Int16Variant(-3),
		hasValue: true,
	}
	p.children[0x2001] = &fakeChild{
		sym:    typedesc.SymbolInfo{Name: "gone", Size: 2},
		hasOff: true,
		offset: 2,
		tagErr: true,
	}

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", d.Count())
	}
	m := d.At(0)
	if m.Offset() != 0 || m.Value() != -3 || !m.IsConstant() {
		t.Fatalf("odd = %v value=%d, want constant -3 at offset 0", m, m.Value())
	}
}

func TestBuildDescriptorMemberPathWins(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 1, length: 8, children: []uint32{0x2000}}
	p.children[0x2000] = &fakeChild{
		sym:      typedesc.SymbolInfo{Name: "both", Size: 4},
		hasOff:   true,
		offset:   4,
		tag:      typedesc.TagData,
		value:    typedesc.Int32Variant(99),
		hasValue: true,
	}

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	m, ok := d.GetMember("BOTH")
	if !ok {
		t.Fatal("GetMember(BOTH) not found")
	}
	if m.IsConstant() || m.Offset() != 4 || m.Value() != 0 {
		t.Fatalf("both = %v value=%d, want storage member at 4", m, m.Value())
	}
}

func TestBuildDescriptorLengthFailureTolerated(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 1, noLength: true, children: []uint32{0x2000}}
	p.member(0x2000, "x", 0, 4)

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d == nil {
		t.Fatal("BuildDescriptor returned nil")
	}
	if d.Length() != 0 || d.Count() != 1 {
		t.Fatalf("Length()=%d Count()=%d, want 0 and 1", d.Length(), d.Count())
	}
}

func TestBuildDescriptorEmptyType(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 0, length: 1}

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d == nil {
		t.Fatal("empty type must still produce a descriptor")
	}
	if d.Count() != 0 || d.Length() != 1 {
		t.Fatalf("Count()=%d Length()=%d, want 0 and 1", d.Count(), d.Length())
	}
}

func TestBuildDescriptorFindChildrenFails(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 2, length: 8, findErr: true}

	d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
	if d == nil {
		t.Fatal("BuildDescriptor returned nil")
	}
	if d.Count() != 0 || d.Length() != 8 {
		t.Fatalf("Count()=%d Length()=%d, want 0 and 8", d.Count(), d.Length())
	}
}

func TestBuildDescriptorTruncates(t *testing.T) {
	p := newFakeProvider(testBase)
	p.types[0x1000] = &fakeType{count: 3, length: 12, children: []uint32{0x2000, 0x2001, 0x2002}}
	p.member(0x2000, "a", 0, 4)
	p.member(0x2001, "b", 4, 4)
	p.member(0x2002, "c", 8, 4)

	b := typedesc.NewBuilder(p, nil)
	b.Capacity = 2
	d := b.BuildDescriptor(testBase, 0x1000)
	if !d.Truncated() {
		t.Fatal("Truncated() = false, want true")
	}
	if p.findCapacity != 2 {
		t.Fatalf("FindChildren capacity = %d, want 2", p.findCapacity)
	}
	if got := memberNames(d); !equalStrings(got, []string{"a", "b"}) {
		t.Fatalf("members = %v, want [a b]", got)
	}
}

func TestBuildDescriptorConstantWidths(t *testing.T) {
	cases := []struct {
		size int
		v    typedesc.Variant
		want int64
	}{
		{1, typedesc.NewVariant(typedesc.VTUI1, 0xFFFF_FFFF_FFFF_FFFF), 0xFF},
		{2, typedesc.NewVariant(typedesc.VTI2, 0xFFFF), -1},
		{4, typedesc.NewVariant(typedesc.VTI4, 0x1_0000_0005), 5},
		{8, typedesc.Int64Variant(-1 << 40), -1 << 40},
		{3, typedesc.NewVariant(typedesc.VTI4, 0xFFFF_FFFE), -2},
	}
	for _, tc := range cases {
		p := newFakeProvider(testBase)
		p.types[0x1000] = &fakeType{count: 1, length: 4, children: []uint32{0x2000}}
		p.constant(0x2000, "K", tc.size, tc.v)

		d := typedesc.NewBuilder(p, nil).BuildDescriptor(testBase, 0x1000)
		if got := d.At(0).Value(); got != tc.want {
			t.Fatalf("size %d: Value() = %d, want %d", tc.size, got, tc.want)
		}
		if got := d.At(0).Symbol().Value; got != int64(tc.v.Bits()) {
			t.Fatalf("size %d: raw value = %d, want %d", tc.size, got, int64(tc.v.Bits()))
		}
	}
}
