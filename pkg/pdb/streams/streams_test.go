package streams_test

import (
	"bytes"
	"testing"

	"github.com/jtang613/pdbstruct/internal/pdbtest"
	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

func TestParseNumeric(t *testing.T) {
	cases := []struct {
		in       []byte
		want     uint64
		consumed int
	}{
		{[]byte{0x34, 0x12}, 0x1234, 2},
		{[]byte{0x00, 0x80, 0xff}, 0xffffffffffffffff, 3},
		{[]byte{0x01, 0x80, 0xfe, 0xff}, 0xfffffffffffffffe, 4},
		{[]byte{0x02, 0x80, 0xfe, 0xff}, 0xfffe, 4},
		{[]byte{0x03, 0x80, 0x00, 0x00, 0x00, 0x80}, 0xffffffff80000000, 6},
		{[]byte{0x04, 0x80, 0x00, 0x00, 0x00, 0x80}, 0x80000000, 6},
		{[]byte{0x0a, 0x80, 1, 0, 0, 0, 0, 0, 0, 0x80}, 0x8000000000000001, 10},
		{[]byte{0x04, 0x80, 0x00}, 0, 0},
		{[]byte{0x05, 0x80, 0, 0, 0, 0}, 0, 0},
		{[]byte{0x01}, 0, 0},
	}
	for _, tc := range cases {
		got, n := streams.ParseNumeric(tc.in)
		if got != tc.want || n != tc.consumed {
			t.Fatalf("ParseNumeric(% x) = %#x, %d, want %#x, %d", tc.in, got, n, tc.want, tc.consumed)
		}
	}
}

func TestNumericEncodingRoundTrips(t *testing.T) {
	for _, v := range []int64{0, 5, 0x7fff, 0x8000, -1, -200, 70000, -70000, 1 << 40, -(1 << 40)} {
		got, n := streams.ParseNumeric(pdbtest.SignedNumeric(v))
		if n == 0 || int64(got) != v {
			t.Fatalf("SignedNumeric(%d) parsed as %d (%d bytes)", v, int64(got), n)
		}
	}
}

func TestSkipPadding(t *testing.T) {
	cases := []struct {
		in   []byte
		want int
	}{
		{[]byte{0xf3, 0xf2, 0xf1}, 3},
		{[]byte{0xf1}, 1},
		{[]byte{0xf3}, 1},
		{[]byte{0x0d, 0x15}, 0},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := streams.SkipPadding(tc.in); got != tc.want {
			t.Fatalf("SkipPadding(% x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBuiltinTypes(t *testing.T) {
	cases := []struct {
		index uint32
		name  string
		size  int
	}{
		{streams.T_INT4, "int32", 4},
		{streams.T_UCHAR, "unsigned char", 1},
		{streams.T_WCHAR, "wchar_t", 2},
		{streams.T_REAL64, "double", 8},
		{streams.T_VOID, "void", 0},
		{streams.T_HRESULT, "HRESULT", 4},
		{streams.TM_NPTR64<<8 | streams.T_VOID, "void*", 8},
		{streams.TM_NPTR32<<8 | streams.T_CHAR, "char*", 4},
	}
	for _, tc := range cases {
		if got := streams.GetBuiltinTypeName(tc.index); got != tc.name {
			t.Fatalf("GetBuiltinTypeName(%#x) = %q, want %q", tc.index, got, tc.name)
		}
		size, ok := streams.BuiltinTypeSize(tc.index)
		if !ok || size != tc.size {
			t.Fatalf("BuiltinTypeSize(%#x) = %d, %v, want %d", tc.index, size, ok, tc.size)
		}
	}
	if _, ok := streams.BuiltinTypeSize(0x1000); ok {
		t.Fatal("BuiltinTypeSize accepted a TPI index")
	}
	if !streams.IsSignedBuiltin(streams.T_INT2) || streams.IsSignedBuiltin(streams.T_UINT2) {
		t.Fatal("IsSignedBuiltin misclassified int16/uint16")
	}
}

func TestReadTPIStream(t *testing.T) {
	tb := pdbtest.NewTypeBuilder()
	fl := tb.FieldList(pdbtest.Member(streams.T_INT4, 0, "a"))
	st := tb.Struct(streams.LF_STRUCTURE, 1, 0, fl, 4, "S")

	tpi, err := streams.ReadTPIStream(tb.Stream())
	if err != nil {
		t.Fatalf("ReadTPIStream: %v", err)
	}
	if tpi.NumTypes() != 2 || tpi.TypeCount() != 2 {
		t.Fatalf("NumTypes()=%d TypeCount()=%d, want 2 and 2", tpi.NumTypes(), tpi.TypeCount())
	}
	rec := tpi.GetType(st)
	if rec == nil || rec.Kind != streams.LF_STRUCTURE {
		t.Fatalf("GetType(%#x) = %+v, want LF_STRUCTURE", st, rec)
	}
	if tpi.GetType(0x2000) != nil {
		t.Fatal("GetType returned a record past the end")
	}
	if got := streams.LeafKindName(rec.Kind); got != "LF_STRUCTURE" {
		t.Fatalf("LeafKindName = %q", got)
	}
}

func TestReadTPIStreamRejectsVersion(t *testing.T) {
	data := pdbtest.EmptyTypeStream()
	data[0] = 1
	if _, err := streams.ReadTPIStream(data); err == nil {
		t.Fatal("ReadTPIStream accepted an unknown version")
	}
}

func TestReadPDBInfo(t *testing.T) {
	b := pdbtest.New()
	b.Age = 3
	b.NamedStreams = map[string]uint32{"/names": 9, "/LinkInfo": 8}

	info, err := streams.ReadPDBInfo(bytes.NewReader(pdbtest.Read(b.Bytes(), pdbtest.StreamPDB)))
	if err != nil {
		t.Fatalf("ReadPDBInfo: %v", err)
	}
	if info.Version != streams.PDBStreamVersionVC70 || info.Age != 3 || info.Signature != b.Signature {
		t.Fatalf("header = %+v", info.PDBInfoHeader)
	}
	if info.NamedStreams["/names"] != 9 || info.NamedStreams["/LinkInfo"] != 8 {
		t.Fatalf("NamedStreams = %v", info.NamedStreams)
	}
	if got, want := info.GUIDString(), "76543210BA98FEDC0102030405060708"; got != want {
		t.Fatalf("GUIDString() = %s, want %s", got, want)
	}
	if got := info.SymbolServerKey(); got != info.GUIDString()+"3" {
		t.Fatalf("SymbolServerKey() = %s", got)
	}
}

func TestReadDBIStream(t *testing.T) {
	b := pdbtest.New()
	m1 := b.AddModule("a.obj", "a.obj", `c:\src\a.c`, `c:\src\a.h`)
	m1.Symbols.Proc(codeview.S_GPROC32, streams.T_VOID, 1, 0x10, 0x20, "fa")
	b.AddModule("b.obj", "lib.lib", `c:\src\b.c`)

	dbi, err := streams.ReadDBIStream(pdbtest.Read(b.Bytes(), pdbtest.StreamDBI))
	if err != nil {
		t.Fatalf("ReadDBIStream: %v", err)
	}
	if got := streams.MachineTypeName(dbi.Header.Machine); got != "x64" {
		t.Fatalf("machine = %s, want x64", got)
	}
	if len(dbi.Modules) != 2 {
		t.Fatalf("len(Modules) = %d, want 2", len(dbi.Modules))
	}
	a, lib := dbi.Modules[0], dbi.Modules[1]
	if a.ModuleName != "a.obj" || lib.ObjFileName != "lib.lib" {
		t.Fatalf("module names = %q, %q", a.ModuleName, lib.ObjFileName)
	}
	if !a.HasSymbols() || a.ModuleSymStream != pdbtest.StreamFirstModule {
		t.Fatalf("module a symbols: stream %d, %d bytes", a.ModuleSymStream, a.SymByteSize)
	}
	if len(a.SourceFiles) != 2 || a.SourceFiles[1] != `c:\src\a.h` || lib.SourceFiles[0] != `c:\src\b.c` {
		t.Fatalf("source files = %v / %v", a.SourceFiles, lib.SourceFiles)
	}
	if len(dbi.SectionContribs) != 2 || dbi.SectionContribs[1].ModuleIndex != 1 {
		t.Fatalf("section contribs = %+v", dbi.SectionContribs)
	}
	if idx, ok := dbi.DebugStream(streams.DbgSectionHdr); !ok || idx != pdbtest.StreamSections {
		t.Fatalf("DebugStream(SectionHdr) = %d, %v", idx, ok)
	}
	if _, ok := dbi.DebugStream(streams.DbgFPO); ok {
		t.Fatal("DebugStream(FPO) reported a stream")
	}
}

func TestReadDBIStreamRejectsSignature(t *testing.T) {
	data := pdbtest.Read(pdbtest.New().Bytes(), pdbtest.StreamDBI)
	data[0] = 0
	if _, err := streams.ReadDBIStream(data); err == nil {
		t.Fatal("ReadDBIStream accepted a bad version signature")
	}
}

func TestSectionHeaders(t *testing.T) {
	b := pdbtest.New()
	secs, err := streams.ReadSectionHeaders(pdbtest.Read(b.Bytes(), pdbtest.StreamSections))
	if err != nil {
		t.Fatalf("ReadSectionHeaders: %v", err)
	}
	if len(secs) != 2 || secs[0].Name != ".text" || secs[1].VirtualAddress != 0x3000 {
		t.Fatalf("sections = %+v", secs)
	}
	if rva, ok := streams.RVA(secs, 2, 0x10); !ok || rva != 0x3010 {
		t.Fatalf("RVA(2, 0x10) = %#x, %v", rva, ok)
	}
	if _, ok := streams.RVA(secs, 3, 0); ok {
		t.Fatal("RVA accepted section 3")
	}
	seg, off, ok := streams.SectionOf(secs, 0x1234)
	if !ok || seg != 1 || off != 0x234 {
		t.Fatalf("SectionOf(0x1234) = %d, %#x, %v", seg, off, ok)
	}
	if _, _, ok := streams.SectionOf(secs, 0x9000); ok {
		t.Fatal("SectionOf matched an address outside every section")
	}
}
