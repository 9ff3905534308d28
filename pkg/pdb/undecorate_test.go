package pdb_test

import (
	"testing"

	"github.com/jtang613/pdbstruct/pkg/pdb"
)

func TestUndecorate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"main", "main"},
		{"?Walk@Node@@QEAAXXZ", "Node::Walk"},
		{"??0Foo@@QAE@XZ", "Foo::Foo"},
		{"??1Foo@Bar@@QAE@XZ", "Bar::Foo::~Foo"},
		{"??4Foo@@QAEAAV0@ABV0@@Z", "Foo::operator="},
		{"??_7Foo@@6B@", "Foo::`vftable'"},
		{"??_UFoo@@SAPAXI@Z", "Foo::operator new[]"},
		{"?x@?A0x1234abcd@ns@@3HA", "ns::`anonymous namespace'::x"},
		{"??$max@H@std@@YAHHH@Z", "??$max@H@std@@YAHHH@Z"},
		{"?bogus", "?bogus"},
		{"_ZN3foo3barEv", "foo::bar"},
		{"_main", "main"},
		{"_f@8", "f"},
		{"@g@4", "g"},
		{"_x@abc", "x@abc"},
		{"__imp__h@4", "h"},
		{"__imp_?Walk@Node@@QEAAXXZ", "Node::Walk"},
	}
	for _, tt := range tests {
		if got := pdb.Undecorate(tt.in); got != tt.want {
			t.Fatalf("Undecorate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
