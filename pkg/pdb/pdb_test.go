package pdb_test

import (
	"bytes"
	"testing"

	"github.com/jtang613/pdbstruct/internal/pdbtest"
	"github.com/jtang613/pdbstruct/pkg/pdb"
	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// fixture is a small program: a linked-list Node with a bitfield, a static
// member, a method and an enum-typed member, a class deriving from Node, and
// an enum with a negative enumerator.
type fixture struct {
	b       *pdbtest.Builder
	color   uint32
	fwdNode uint32
	nodePtr uint32
	node    uint32
	derived uint32
	arr     uint32
	walk    uint32
}

func newFixture() *fixture {
	f := &fixture{b: pdbtest.New()}
	tb := f.b.Types

	colors := tb.FieldList(
		pdbtest.Enumerate(0, "Red"),
		pdbtest.Enumerate(1, "Green"),
		pdbtest.Enumerate(-1, "Invalid"),
	)
	f.color = tb.Enum(3, streams.T_INT4, colors, "Color")
	f.fwdNode = tb.ForwardStruct("Node")
	f.nodePtr = tb.Pointer(f.fwdNode, 8)
	bits := tb.Bitfield(streams.T_UINT4, 3, 5)
	f.walk = tb.Procedure(streams.T_VOID)
	fields := tb.FieldList(
		pdbtest.Member(streams.T_INT4, 0, "Value"),
		pdbtest.Member(f.nodePtr, 8, "Next"),
		pdbtest.Member(bits, 16, "Flags"),
		pdbtest.StaticMember(streams.T_INT4, "Count"),
		pdbtest.OneMethod(f.walk, "Walk"),
		pdbtest.Member(f.color, 20, "Color"),
	)
	f.node = tb.Struct(streams.LF_STRUCTURE, 6, 0, fields, 24, "Node")
	derived := tb.FieldList(
		pdbtest.BaseClass(f.node, 0),
		pdbtest.Member(streams.T_REAL64, 24, "Weight"),
	)
	f.derived = tb.Struct(streams.LF_CLASS, 2, 0, derived, 32, "Derived")
	f.arr = tb.Array(streams.T_INT4, 40)

	f.b.Globals.Public(codeview.CVPubFunction, 1, 0x40, "?Walk@Node@@QEAAXXZ")
	f.b.Globals.Data(codeview.S_GDATA32, f.node, 2, 0x10, "g_head")
	f.b.Globals.UDT(f.node, "NODE")
	f.b.Globals.Constant(streams.T_INT4, 42, "ANSWER")

	m := f.b.AddModule("main.obj", "main.obj", `c:\src\main.c`, `c:\src\list.h`)
	m.Symbols.Proc(codeview.S_GPROC32, f.walk, 1, 0x40, 0x30, "main")
	m.Symbols.Data(codeview.S_LDATA32, streams.T_INT4, 2, 0x20, "s_counter")
	m.Symbols.Data(codeview.S_GDATA32, f.node, 2, 0x10, "g_head")
	return f
}

func (f *fixture) open(t *testing.T) *pdb.PDB {
	t.Helper()
	p, err := pdb.OpenReader(bytes.NewReader(f.b.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	if w := p.Warnings(); len(w) != 0 {
		t.Fatalf("Warnings() = %v", w)
	}
	return p
}

func TestOpenInfo(t *testing.T) {
	f := newFixture()
	path := f.b.WriteFile(t, "app.pdb")
	p, err := pdb.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	info := p.Info()
	if info.Machine != "x64" || info.Age != 1 || info.GUID != "76543210BA98FEDC0102030405060708" {
		t.Fatalf("Info() = %+v", info)
	}
	if info.Types != p.TypeCount() || info.Types == 0 {
		t.Fatalf("Info().Types = %d, TypeCount() = %d", info.Types, p.TypeCount())
	}
	if info.SymbolKey != info.GUID+"1" {
		t.Fatalf("SymbolKey = %s", info.SymbolKey)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := pdb.OpenReader(bytes.NewReader(make([]byte, 4096))); err == nil {
		t.Fatal("OpenReader accepted a zero-filled image")
	}
}

func TestSymbols(t *testing.T) {
	p := newFixture().open(t)

	fns := p.Functions()
	if len(fns) != 1 {
		t.Fatalf("Functions() = %+v", fns)
	}
	if fn := fns[0]; fn.Name != "main" || fn.RVA != 0x1040 || fn.Module != "main.obj" || fn.Signature != "void (*)(void)" {
		t.Fatalf("main = %+v", fn)
	}

	vars := p.Variables()
	if len(vars) != 2 {
		t.Fatalf("Variables() = %+v", vars)
	}
	byName := map[string]pdb.Variable{}
	for _, v := range vars {
		byName[v.Name] = v
	}
	if g := byName["g_head"]; g.RVA != 0x3010 || g.Size != 24 || g.TypeName != "Node" || !g.IsGlobal {
		t.Fatalf("g_head = %+v", g)
	}
	if s := byName["s_counter"]; s.RVA != 0x3020 || s.IsGlobal || s.Module != "main.obj" {
		t.Fatalf("s_counter = %+v", s)
	}

	pubs := p.PublicSymbols()
	if len(pubs) != 1 || pubs[0].DemangledName != "Node::Walk" || pubs[0].RVA != 0x1040 || !pubs[0].IsFunction {
		t.Fatalf("PublicSymbols() = %+v", pubs)
	}
	if c := p.Constants(); len(c) != 1 || c[0].Name != "ANSWER" || c[0].Value != 42 {
		t.Fatalf("Constants() = %+v", c)
	}
	if td := p.Typedefs(); len(td) != 1 || td[0].Name != "NODE" {
		t.Fatalf("Typedefs() = %+v", td)
	}
}

func TestModulesSectionsSources(t *testing.T) {
	p := newFixture().open(t)

	mods := p.Modules()
	if len(mods) != 1 || mods[0].Name != "main.obj" || mods[0].SourceFiles != 2 {
		t.Fatalf("Modules() = %+v", mods)
	}
	secs := p.Sections()
	if len(secs) != 2 || secs[1].Index != 2 || secs[1].Name != ".data" || secs[1].Offset != 0x3000 {
		t.Fatalf("Sections() = %+v", secs)
	}
	if got := p.ImageSize(); got != 0x4000 {
		t.Fatalf("ImageSize() = %#x, want 0x4000", got)
	}
	files := p.SourceFiles()
	if len(files) != 2 || files[1].Path != `c:\src\list.h` || files[1].Module != "main.obj" {
		t.Fatalf("SourceFiles() = %+v", files)
	}
}

func TestTypes(t *testing.T) {
	f := newFixture()
	p := f.open(t)

	kinds := map[string]string{}
	for _, ti := range p.Types() {
		kinds[ti.Name] = ti.Kind
	}
	want := map[string]string{"Color": "enum", "Node": "struct", "Derived": "class"}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Fatalf("Types()[%s] kind = %q, want %q (all: %v)", name, kinds[name], kind, kinds)
		}
	}
	if len(kinds) != len(want) {
		t.Fatalf("Types() = %v", kinds)
	}

	node := p.ResolveType(f.fwdNode)
	if node == nil || node.Index != f.node || node.Size != 24 {
		t.Fatalf("ResolveType(forward ref) = %+v", node)
	}
	members := []struct {
		name, typ string
		offset    uint64
	}{
		{"Value", "int32", 0},
		{"Next", "Node*", 8},
		{"Flags", "uint32", 16},
		{"Color", "Color", 20},
	}
	if len(node.Members) != len(members) {
		t.Fatalf("Node members = %+v", node.Members)
	}
	for i, m := range members {
		got := node.Members[i]
		if got.Name != m.name || got.TypeName != m.typ || got.Offset != m.offset {
			t.Fatalf("member %d = %+v, want %s %s at %d", i, got, m.typ, m.name, m.offset)
		}
	}

	color := p.ResolveType(f.color)
	if color == nil || color.Size != 4 || len(color.Members) != 3 {
		t.Fatalf("ResolveType(Color) = %+v", color)
	}
	if v := color.Members[2].Value; v == nil || *v != -1 {
		t.Fatalf("Invalid = %v, want -1", v)
	}

	if ti := p.ResolveType(streams.T_REAL64); ti == nil || ti.Kind != "builtin" || ti.Size != 8 {
		t.Fatalf("ResolveType(double) = %+v", ti)
	}
	if ti := p.ResolveType(f.arr); ti == nil || ti.Signature != "int32[10]" || ti.Size != 40 {
		t.Fatalf("ResolveType(array) = %+v", ti)
	}
	if ti := p.ResolveType(0x7fff); ti != nil {
		t.Fatalf("ResolveType(missing) = %+v", ti)
	}
}
