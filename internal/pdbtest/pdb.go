package pdbtest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// Fixed stream layout of built images.
const (
	StreamPDB = 1
	StreamTPI = 2
	StreamDBI = 3
	StreamIPI = 4
	// StreamSymbols holds the global symbol records.
	StreamSymbols = 5
	// StreamSections holds the section headers.
	StreamSections = 6
	// StreamFirstModule is the stream of the first module's symbols.
	StreamFirstModule = 7
)

// Section describes one PE section header.
type Section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
}

// Module is a compiland with its own symbol stream.
type Module struct {
	Name        string
	ObjName     string
	SourceFiles []string
	Symbols     SymbolBuilder
}

// SymbolOffset converts a builder offset into an offset within the module
// stream.
func (m *Module) SymbolOffset(off uint32) uint32 { return off + 4 }

// Builder assembles a PDB image.
type Builder struct {
	Types    *TypeBuilder
	Globals  SymbolBuilder
	Modules  []*Module
	Sections []Section

	Machine      uint16
	Age          uint32
	Signature    uint32
	GUID         [16]byte
	NamedStreams map[string]uint32
}

// New returns an x64 builder with a .text and a .data section.
func New() *Builder {
	return &Builder{
		Types: NewTypeBuilder(),
		Sections: []Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x2000},
			{Name: ".data", VirtualAddress: 0x3000, VirtualSize: 0x1000},
		},
		Machine:   streams.MachineAMD64,
		Age:       1,
		Signature: 0x5f3759df,
		GUID:      [16]byte{0x10, 0x32, 0x54, 0x76, 0x98, 0xba, 0xdc, 0xfe, 1, 2, 3, 4, 5, 6, 7, 8},
	}
}

// AddModule appends a module.
func (b *Builder) AddModule(name, obj string, files ...string) *Module {
	m := &Module{Name: name, ObjName: obj, SourceFiles: files}
	b.Modules = append(b.Modules, m)
	return m
}

// Bytes encodes the image.
func (b *Builder) Bytes() []byte {
	all := [][]byte{
		{},
		b.pdbInfo(),
		b.Types.Stream(),
		b.dbi(),
		EmptyTypeStream(),
		b.Globals.Bytes(),
		b.sectionHeaders(),
	}
	for _, m := range b.Modules {
		all = append(all, cat(u32(codeview.CVSignatureC13), m.Symbols.Bytes()))
	}
	return WriteMSF(all)
}

// WriteFile writes the image to a temporary directory and returns its path.
func (b *Builder) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func (b *Builder) pdbInfo() []byte {
	out := cat(u32(streams.PDBStreamVersionVC70), u32(b.Signature), u32(b.Age), b.GUID[:])

	names := make([]string, 0, len(b.NamedStreams))
	for n := range b.NamedStreams {
		names = append(names, n)
	}
	slices.Sort(names)

	var strBuf, pairs []byte
	for _, n := range names {
		pairs = append(pairs, u32(uint32(len(strBuf)))...)
		pairs = append(pairs, u32(b.NamedStreams[n])...)
		strBuf = append(strBuf, cstr(n)...)
	}
	// Every bucket of a full table is present.
	var present uint32
	for i := range names {
		present |= 1 << i
	}
	out = append(out, u32(uint32(len(strBuf)))...)
	out = append(out, strBuf...)
	out = append(out, u32(uint32(len(names)))...)
	out = append(out, u32(uint32(len(names)))...)
	out = append(out, u32(1)...)
	out = append(out, u32(present)...)
	out = append(out, u32(0)...)
	return append(out, pairs...)
}

func (b *Builder) sectionHeaders() []byte {
	var out []byte
	for _, s := range b.Sections {
		name := make([]byte, 8)
		copy(name, s.Name)
		out = cat(out, name, u32(s.VirtualSize), u32(s.VirtualAddress), make([]byte, 16), u16(0), u16(0), u32(0x60000020))
	}
	return out
}

func (b *Builder) dbi() []byte {
	var modInfo, contribs []byte
	contribs = u32(0xeffe0000 + 19970605)
	for i, m := range b.Modules {
		contrib := cat(u16(1), u16(0), u32(uint32(i*0x100)), u32(0x100), u32(0x60000020), u16(uint16(i)), u16(0), u32(0), u32(0))
		contribs = append(contribs, contrib...)

		syms := uint32(4 + len(m.Symbols.Bytes()))
		rec := cat(
			u32(0), contrib,
			u16(0), u16(uint16(StreamFirstModule+i)),
			u32(syms), u32(0), u32(0),
			u16(uint16(len(m.SourceFiles))), u16(0),
			u32(0), u32(0), u32(0),
			cstr(m.Name), cstr(m.ObjName),
		)
		for len(rec)%4 != 0 {
			rec = append(rec, 0)
		}
		modInfo = append(modInfo, rec...)
	}

	fileInfo := b.fileInfo()

	dbgHeader := make([]byte, 0, 22)
	for slot := 0; slot <= streams.DbgSectionHdrOrig; slot++ {
		idx := uint16(streams.NoStream)
		if slot == streams.DbgSectionHdr {
			idx = StreamSections
		}
		dbgHeader = append(dbgHeader, u16(idx)...)
	}

	h := cat(
		u32(0xFFFFFFFF), u32(streams.DBIStreamVersionV70), u32(b.Age),
		u16(streams.NoStream), u16(0x8e00), u16(streams.NoStream), u16(0),
		u16(StreamSymbols), u16(0),
		u32(uint32(len(modInfo))), u32(uint32(len(contribs))), u32(0),
		u32(uint32(len(fileInfo))), u32(0), u32(0),
		u32(uint32(len(dbgHeader))), u32(0),
		u16(0), u16(b.Machine), u32(0),
	)
	return cat(h, modInfo, contribs, fileInfo, dbgHeader)
}

func (b *Builder) fileInfo() []byte {
	n := len(b.Modules)
	total := 0
	for _, m := range b.Modules {
		total += len(m.SourceFiles)
	}
	out := cat(u16(uint16(n)), u16(uint16(total)))
	start := 0
	for _, m := range b.Modules {
		out = append(out, u16(uint16(start))...)
		start += len(m.SourceFiles)
	}
	for _, m := range b.Modules {
		out = append(out, u16(uint16(len(m.SourceFiles)))...)
	}
	var names []byte
	for _, m := range b.Modules {
		for _, f := range m.SourceFiles {
			out = append(out, u32(uint32(len(names)))...)
			names = append(names, cstr(f)...)
		}
	}
	out = append(out, names...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

// Read reads stream index out of an image produced by Bytes, for tests that
// exercise raw streams.
func Read(image []byte, index int) []byte {
	sb := image[:56]
	numDirBytes := binary.LittleEndian.Uint32(sb[44:])
	mapBlock := binary.LittleEndian.Uint32(sb[52:])
	dirBlocks := (numDirBytes + BlockSize - 1) / BlockSize
	var dir []byte
	for i := uint32(0); i < dirBlocks; i++ {
		blk := binary.LittleEndian.Uint32(image[mapBlock*BlockSize+i*4:])
		dir = append(dir, image[blk*BlockSize:(blk+1)*BlockSize]...)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(dir[i*4:]) }
	num := int(word(0))
	pos := 1 + num
	for s := 0; s < num; s++ {
		size := word(1 + s)
		if size == 0xFFFFFFFF {
			size = 0
		}
		blocks := int((size + BlockSize - 1) / BlockSize)
		if s == index {
			var out []byte
			for j := 0; j < blocks; j++ {
				blk := word(pos + j)
				out = append(out, image[blk*BlockSize:(blk+1)*BlockSize]...)
			}
			return out[:size]
		}
		pos += blocks
	}
	return nil
}
