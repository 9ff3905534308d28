package pdb

import (
	"fmt"
	"io"
	"sync"

	"github.com/jtang613/pdbstruct/pkg/pdb/codeview"
	"github.com/jtang613/pdbstruct/pkg/pdb/msf"
	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// Stream indices
const (
	StreamPDB = 1 // PDB info stream
	StreamTPI = 2 // Type info stream
	StreamDBI = 3 // Debug info stream
	StreamIPI = 4 // ID info stream
)

// PDB is an opened PDB file. Optional streams that fail to parse are
// dropped and reported by Warnings; the methods then return what the
// remaining streams provide. A PDB is safe for concurrent use.
type PDB struct {
	msf      *msf.MSF
	pdbInfo  *streams.PDBInfo
	tpi      *streams.TPIStream
	dbi      *streams.DBIStream
	sections []streams.Section
	resolver *codeview.TypeResolver

	mu       sync.Mutex
	warnings []error

	tableOnce sync.Once
	table     *TypeTable

	symOnce   sync.Once
	functions []Function
	variables []Variable
	publics   []PublicSymbol
	constants []Constant
	typedefs  []Typedef
}

// Open opens a PDB file and parses its core structures.
func Open(path string) (*PDB, error) {
	m, err := msf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}
	return newPDB(m), nil
}

// OpenReader parses a PDB image from r. Close is a no-op for the reader.
func OpenReader(r io.ReaderAt) (*PDB, error) {
	m, err := msf.NewMSF(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}
	return newPDB(m), nil
}

func newPDB(m *msf.MSF) *PDB {
	p := &PDB{msf: m}

	if m.NumStreams() > StreamPDB {
		if s, err := m.Stream(StreamPDB); err == nil {
			info, err := streams.ReadPDBInfo(s.Reader())
			p.check("PDB info", err)
			p.pdbInfo = info
		}
	}

	if data, err := p.readStream(StreamTPI); err == nil && len(data) > 0 {
		tpi, err := streams.ReadTPIStream(data)
		p.check("TPI", err)
		p.tpi = tpi
	}
	p.resolver = codeview.NewTypeResolver(p.tpi)

	if data, err := p.readStream(StreamDBI); err == nil && len(data) > 0 {
		dbi, err := streams.ReadDBIStream(data)
		p.check("DBI", err)
		p.dbi = dbi
	}

	if p.dbi != nil {
		if idx, ok := p.dbi.DebugStream(streams.DbgSectionHdr); ok {
			data, err := p.readStream(int(idx))
			if p.check("section header", err) {
				secs, err := streams.ReadSectionHeaders(data)
				p.check("section header", err)
				p.sections = secs
			}
		}
	}
	return p
}

func (p *PDB) readStream(index int) ([]byte, error) {
	if index >= p.msf.NumStreams() {
		return nil, fmt.Errorf("stream %d not present", index)
	}
	return p.msf.ReadStream(index)
}

// check records a failure to parse an optional stream and reports whether
// err was nil.
func (p *PDB) check(what string, err error) bool {
	if err == nil {
		return true
	}
	p.mu.Lock()
	p.warnings = append(p.warnings, fmt.Errorf("failed to parse %s stream: %w", what, err))
	p.mu.Unlock()
	return false
}

// Warnings returns the stream parse failures seen so far.
func (p *PDB) Warnings() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.warnings...)
}

// Close closes the PDB file.
func (p *PDB) Close() error {
	if p.msf != nil {
		return p.msf.Close()
	}
	return nil
}

// Info returns basic PDB file information.
func (p *PDB) Info() *PDBInfo {
	info := &PDBInfo{
		Streams: p.msf.NumStreams(),
		Types:   p.TypeCount(),
	}

	if p.pdbInfo != nil {
		info.GUID = p.pdbInfo.GUIDString()
		info.Age = p.pdbInfo.Age
		info.Version = p.pdbInfo.Version
		info.Signature = p.pdbInfo.Signature
		info.SymbolKey = p.pdbInfo.SymbolServerKey()
		info.NamedStreams = p.pdbInfo.NamedStreams
	}

	if p.dbi != nil {
		info.Machine = streams.MachineTypeName(p.dbi.Header.Machine)
	}

	return info
}

// TypeTable returns the type table built from the TPI stream. It is built
// on first use.
func (p *PDB) TypeTable() *TypeTable {
	p.tableOnce.Do(func() {
		p.table = NewTypeTable(p.tpi)
	})
	return p.table
}

// rva converts a segment:offset pair, returning zero when the section is
// unknown.
func (p *PDB) rva(segment uint16, offset uint32) uint32 {
	rva, _ := streams.RVA(p.sections, segment, offset)
	return rva
}

func undecorated(name string) string {
	if u := Undecorate(name); u != name {
		return u
	}
	return ""
}

type symbolKey struct {
	segment uint16
	offset  uint32
	name    string
}

// loadSymbols walks the global symbol stream and every module stream once.
func (p *PDB) loadSymbols() {
	p.symOnce.Do(func() {
		p.functions = make([]Function, 0)
		p.variables = make([]Variable, 0)
		p.publics = make([]PublicSymbol, 0)
		if p.dbi == nil {
			return
		}
		seen := make(map[symbolKey]bool)

		if idx := p.dbi.Header.SymRecordStream; idx != streams.NoStream {
			data, err := p.readStream(int(idx))
			if p.check("global symbol", err) {
				recs, err := codeview.ParseSymbols(data)
				p.check("global symbol", err)
				p.collect(recs, "", seen)
			}
		}

		for _, mod := range p.dbi.Modules {
			if !mod.HasSymbols() {
				continue
			}
			data, err := p.readStream(int(mod.ModuleSymStream))
			if !p.check("module "+mod.ModuleName, err) {
				continue
			}
			recs, err := codeview.ParseModuleSymbols(data, mod.SymByteSize)
			p.check("module "+mod.ModuleName, err)
			p.collect(recs, mod.ModuleName, seen)
		}
	})
}

func (p *PDB) collect(recs []codeview.SymbolRecord, module string, seen map[symbolKey]bool) {
	for _, sym := range recs {
		switch {
		case codeview.IsProcSymbol(sym.Kind):
			proc, err := codeview.ParseProcSym(sym.Data)
			if err != nil {
				continue
			}
			p.functions = append(p.functions, Function{
				Name:          proc.Name,
				DemangledName: undecorated(proc.Name),
				Offset:        proc.Offset,
				Segment:       proc.Segment,
				RVA:           p.rva(proc.Segment, proc.Offset),
				Length:        proc.Length,
				TypeIndex:     proc.TypeIndex,
				Signature:     p.resolver.ResolveType(proc.TypeIndex),
				IsGlobal:      codeview.IsGlobalSymbol(sym.Kind),
				Module:        module,
			})

		case codeview.IsDataSymbol(sym.Kind):
			d, err := codeview.ParseDataSym(sym.Data)
			if err != nil {
				continue
			}
			// Globals appear in both the global stream and their module.
			key := symbolKey{d.Segment, d.Offset, d.Name}
			if seen[key] {
				continue
			}
			seen[key] = true
			size, _ := p.resolver.TypeSize(d.TypeIndex)
			p.variables = append(p.variables, Variable{
				Name:          d.Name,
				DemangledName: undecorated(d.Name),
				Offset:        d.Offset,
				Segment:       d.Segment,
				RVA:           p.rva(d.Segment, d.Offset),
				TypeIndex:     d.TypeIndex,
				TypeName:      p.resolver.ResolveType(d.TypeIndex),
				Size:          size,
				IsGlobal:      codeview.IsGlobalSymbol(sym.Kind),
				ThreadLocal:   codeview.IsThreadLocal(sym.Kind),
				Module:        module,
			})

		case sym.Kind == codeview.S_PUB32:
			pub, err := codeview.ParsePubSym(sym.Data)
			if err != nil {
				continue
			}
			p.publics = append(p.publics, PublicSymbol{
				Name:          pub.Name,
				DemangledName: undecorated(pub.Name),
				Offset:        pub.Offset,
				Segment:       pub.Segment,
				RVA:           p.rva(pub.Segment, pub.Offset),
				IsFunction:    pub.Flags&(codeview.CVPubFunction|codeview.CVPubCode) != 0,
			})

		case sym.Kind == codeview.S_CONSTANT:
			c, err := codeview.ParseConstantSym(sym.Data)
			if err != nil {
				continue
			}
			p.constants = append(p.constants, Constant{
				Name:      c.Name,
				TypeIndex: c.TypeIndex,
				TypeName:  p.resolver.ResolveType(c.TypeIndex),
				Value:     int64(c.Value),
			})

		case sym.Kind == codeview.S_UDT:
			u, err := codeview.ParseUDTSym(sym.Data)
			if err != nil {
				continue
			}
			p.typedefs = append(p.typedefs, Typedef{Name: u.Name, TypeIndex: u.TypeIndex})
		}
	}
}

// Functions returns every procedure in the global and module symbol
// streams.
func (p *PDB) Functions() []Function {
	p.loadSymbols()
	return p.functions
}

// Variables returns global, static and thread-local variables. A variable
// listed in both the global stream and its module is returned once.
func (p *PDB) Variables() []Variable {
	p.loadSymbols()
	return p.variables
}

// PublicSymbols returns all public symbols.
func (p *PDB) PublicSymbols() []PublicSymbol {
	p.loadSymbols()
	return p.publics
}

// Constants returns the named constants of the symbol streams.
func (p *PDB) Constants() []Constant {
	p.loadSymbols()
	return p.constants
}

// Typedefs returns the S_UDT records naming types.
func (p *PDB) Typedefs() []Typedef {
	p.loadSymbols()
	return p.typedefs
}

// Types returns every named structure, class, union and enum definition.
func (p *PDB) Types() []TypeInfo {
	t := p.TypeTable()
	named := t.Named()
	types := make([]TypeInfo, 0, len(named))
	for _, idx := range named {
		if ti := p.ResolveType(idx); ti != nil {
			types = append(types, *ti)
		}
	}
	return types
}

// ResolveType resolves a type index to a TypeInfo, or nil if the index is
// unknown.
func (p *PDB) ResolveType(index uint32) *TypeInfo {
	if index < streams.TypeIndexBegin {
		size, ok := streams.BuiltinTypeSize(index)
		if !ok {
			return nil
		}
		name := streams.GetBuiltinTypeName(index)
		return &TypeInfo{Index: index, Kind: "builtin", Name: name, Size: uint64(size), Signature: name}
	}

	t := p.TypeTable()
	rec := p.resolver.Record(t.canonical(index))
	if rec == nil {
		return nil
	}
	if !codeview.IsAggregate(rec.Kind) {
		ti := &TypeInfo{
			Index:     index,
			Kind:      streams.LeafKindName(rec.Kind),
			Signature: p.resolver.ResolveType(index),
		}
		if size, ok := p.resolver.TypeSize(rec.Index); ok {
			ti.Size = size
		}
		return ti
	}

	a, err := codeview.ParseAggregate(rec)
	if err != nil {
		return nil
	}
	ti := &TypeInfo{
		Index:     rec.Index,
		Kind:      a.KindName(),
		Name:      a.Name,
		Signature: a.KindName() + " " + a.Name,
	}
	if size, err := t.Length(rec.Index); err == nil {
		ti.Size = size
	}
	if a.IsEnum() {
		ti.Signature += " : " + p.resolver.ResolveType(a.Underlying)
	}

	kids, _ := t.FindChildren(rec.Index, len(t.children[rec.Index]))
	for _, c := range kids {
		n := t.nodes[c]
		switch {
		case n.hasValue:
			v := n.value.Decode(n.size)
			ti.Members = append(ti.Members, Member{Name: n.name, TypeName: a.Name, Value: &v})
		case n.hasOffset:
			ti.Members = append(ti.Members, Member{
				Name:     n.name,
				TypeName: p.resolver.ResolveType(n.typeID),
				Offset:   uint64(n.offset),
			})
		}
	}
	return ti
}

// Modules returns information about compiled modules.
func (p *PDB) Modules() []ModuleInfo {
	if p.dbi == nil {
		return nil
	}

	modules := make([]ModuleInfo, len(p.dbi.Modules))
	for i, mod := range p.dbi.Modules {
		modules[i] = ModuleInfo{
			Name:         mod.ModuleName,
			ObjectFile:   mod.ObjFileName,
			SymbolStream: mod.ModuleSymStream,
			SymbolSize:   mod.SymByteSize,
			SourceFiles:  len(mod.SourceFiles),
		}
	}
	return modules
}

// Sections returns the image's section headers.
func (p *PDB) Sections() []SectionInfo {
	out := make([]SectionInfo, len(p.sections))
	for i, s := range p.sections {
		out[i] = SectionInfo{
			Index:           uint16(i + 1),
			Name:            s.Name,
			Offset:          s.VirtualAddress,
			Length:          s.VirtualSize,
			Characteristics: s.Characteristics,
		}
	}
	return out
}

// ImageSize returns the extent of the image implied by its sections.
func (p *PDB) ImageSize() uint32 {
	var end uint32
	for _, s := range p.sections {
		end = max(end, s.VirtualAddress+s.VirtualSize)
	}
	return end
}

// SectionOf maps an RVA to a 1-based section and offset.
func (p *PDB) SectionOf(rva uint32) (uint16, uint32, bool) {
	return streams.SectionOf(p.sections, rva)
}

// SourceFiles lists the source files of every module in module order.
func (p *PDB) SourceFiles() []SourceFile {
	if p.dbi == nil {
		return nil
	}
	var files []SourceFile
	for _, mod := range p.dbi.Modules {
		for _, f := range mod.SourceFiles {
			files = append(files, SourceFile{Module: mod.ModuleName, Path: f})
		}
	}
	return files
}

// TypeCount returns the number of types in the TPI stream.
func (p *PDB) TypeCount() int {
	if p.tpi == nil {
		return 0
	}
	return p.tpi.NumTypes()
}
