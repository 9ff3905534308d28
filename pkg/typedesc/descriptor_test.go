package typedesc_test

import (
	"testing"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

func newTestDescriptor() *typedesc.StructDescriptor {
	d := typedesc.NewStructDescriptor(4)
	d.SetLength(16)
	d.AddMember(typedesc.NewMember(typedesc.SymbolInfo{Name: "Count", Size: 4}, 0))
	d.AddMember(typedesc.NewMember(typedesc.SymbolInfo{Name: "Buffer", Size: 8}, 8))
	d.AddMember(typedesc.NewMember(typedesc.SymbolInfo{Name: "Ärger", Size: 2}, 4))
	return d
}

func TestGetOffsetOfIgnoresCase(t *testing.T) {
	d := newTestDescriptor()
	cases := []struct {
		name string
		want int
	}{
		{"Count", 0},
		{"count", 0},
		{"COUNT", 0},
		{"buffer", 8},
		{"ÄRGER", 4},
		{"ärger", 4},
		{"Missing", -1},
		{"", -1},
	}
	for _, tc := range cases {
		if got := d.GetOffsetOf(tc.name); got != tc.want {
			t.Fatalf("GetOffsetOf(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestGetMemberAgreesWithGetOffsetOf(t *testing.T) {
	d := newTestDescriptor()
	for _, name := range []string{"count", "Buffer", "nope", "BUFFERX", "ärger"} {
		m, ok := d.GetMember(name)
		off := d.GetOffsetOf(name)
		if !ok && off != -1 {
			t.Fatalf("GetMember(%q) absent but GetOffsetOf = %d", name, off)
		}
		if ok && off != m.Offset() {
			t.Fatalf("GetMember(%q).Offset() = %d, GetOffsetOf = %d", name, m.Offset(), off)
		}
	}
}

func TestDuplicateNamesLastWriteWins(t *testing.T) {
	d := typedesc.NewStructDescriptor(0)
	first := typedesc.NewMember(typedesc.SymbolInfo{Name: "value"}, 0)
	second := typedesc.NewMember(typedesc.SymbolInfo{Name: "VALUE"}, 4)

	if d.AddMember(first) {
		t.Fatal("first AddMember reported a shadowed member")
	}
	if !d.AddMember(second) {
		t.Fatal("second AddMember did not report the shadowed member")
	}
	if d.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", d.Count())
	}
	if d.At(0) != first || d.At(1) != second {
		t.Fatal("ordered sequence lost an entry")
	}
	if got := d.GetOffsetOf("value"); got != 4 {
		t.Fatalf("GetOffsetOf(value) = %d, want 4 (last write)", got)
	}
	if first.Parent() != d {
		t.Fatal("shadowed member lost its parent")
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	d := newTestDescriptor()
	defer func() {
		if recover() == nil {
			t.Fatal("At(3) did not panic")
		}
	}()
	d.At(d.Count())
}

func TestMembersReturnsCopy(t *testing.T) {
	d := newTestDescriptor()
	ms := d.Members()
	ms[0] = nil
	if d.At(0) == nil {
		t.Fatal("Members() exposed the internal slice")
	}
}

func TestAllStopsEarly(t *testing.T) {
	d := newTestDescriptor()
	seen := 0
	for i, m := range d.All() {
		if m != d.At(i) {
			t.Fatalf("All() yielded %v at %d, want %v", m, i, d.At(i))
		}
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Fatalf("iterated %d members, want 2", seen)
	}
}

func TestCloneDetachesParent(t *testing.T) {
	d := newTestDescriptor()
	orig, _ := d.GetMember("count")
	c := orig.Clone()
	if c.Parent() != nil {
		t.Fatal("clone kept its parent")
	}
	if c == orig {
		t.Fatal("clone is the same pointer")
	}
	if c.Name() != "Count" || c.Offset() != 0 || c.Size() != 4 {
		t.Fatalf("clone = %v, want Count at 0 size 4", c)
	}
	if orig.Parent() != d {
		t.Fatal("original lost its parent")
	}
}

func TestHandBuiltDescriptorReportsNoChildren(t *testing.T) {
	d := newTestDescriptor()
	if d.ReportedChildren() != -1 || d.Truncated() {
		t.Fatalf("ReportedChildren()=%d Truncated()=%v, want -1 and false", d.ReportedChildren(), d.Truncated())
	}
	if d.Length() != 16 {
		t.Fatalf("Length() = %d, want 16", d.Length())
	}
}
