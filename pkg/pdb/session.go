package pdb

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

var (
	// ErrModuleNotLoaded is returned for queries against a base address
	// with no module attached.
	ErrModuleNotLoaded = errors.New("module not loaded")
	// ErrBaseInUse is returned when loading a module at an occupied base.
	ErrBaseInUse = errors.New("module base already in use")
)

// Synthetic bases handed out when LoadModule is called with base 0.
const (
	firstSyntheticBase = 0x10000000
	syntheticBaseStep  = 0x01000000
)

// SymbolOptions are the symbol handler option bits. Only CaseInsensitive,
// UndecorateNames, NoPublics and PublicsOnly change Session behaviour; the
// rest are accepted and ignored.
type SymbolOptions uint32

const (
	OptCaseInsensitive      SymbolOptions = 0x00000001
	OptUndecorateNames      SymbolOptions = 0x00000002
	OptDeferredLoads        SymbolOptions = 0x00000004
	OptNoCpp                SymbolOptions = 0x00000008
	OptLoadLines            SymbolOptions = 0x00000010
	OptOmapFindNearest      SymbolOptions = 0x00000020
	OptLoadAnything         SymbolOptions = 0x00000040
	OptIgnoreCvRec          SymbolOptions = 0x00000080
	OptNoUnqualifiedLoads   SymbolOptions = 0x00000100
	OptFailCriticalErrors   SymbolOptions = 0x00000200
	OptExactSymbols         SymbolOptions = 0x00000400
	OptAllowAbsoluteSymbols SymbolOptions = 0x00000800
	OptIgnoreNtSymPath      SymbolOptions = 0x00001000
	OptInclude32BitModules  SymbolOptions = 0x00002000
	OptPublicsOnly          SymbolOptions = 0x00004000
	OptNoPublics            SymbolOptions = 0x00008000
	OptAutoPublics          SymbolOptions = 0x00010000
	OptNoImageSearch        SymbolOptions = 0x00020000
	OptSecureSymbols        SymbolOptions = 0x00040000
	OptNoPrompts            SymbolOptions = 0x00080000
	OptOverwrite            SymbolOptions = 0x00100000
	OptIgnoreImageDir       SymbolOptions = 0x00200000
	OptFlatDirectory        SymbolOptions = 0x00400000
	OptFavorCompressed      SymbolOptions = 0x00800000
	OptAllowZeroAddress     SymbolOptions = 0x01000000
	OptDebug                SymbolOptions = 0x80000000
)

// DefaultOptions are the options of a Session created without WithOptions.
const DefaultOptions = OptCaseInsensitive | OptUndecorateNames

// Option configures a Session.
type Option func(*Session)

// WithSearchPath sets the directories searched for relative module paths.
func WithSearchPath(dirs ...string) Option {
	return func(s *Session) { s.searchPath = dirs }
}

// WithOptions replaces the symbol options.
func WithOptions(o SymbolOptions) Option {
	return func(s *Session) { s.options = o }
}

// WithLogger sets the logger used by the session and its descriptor builds.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCapacity bounds the children listed per descriptor build.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// Module is a PDB attached to a session at a base address.
type Module struct {
	Base uint64
	Name string
	Path string
	Size uint32

	pdb     *PDB
	table   *TypeTable
	symbols []typedesc.SymbolInfo // sorted by address
	types   []typedesc.SymbolInfo
}

// PDB returns the module's PDB.
func (m *Module) PDB() *PDB { return m.pdb }

func (m *Module) contains(addr uint64) bool {
	return addr >= m.Base && addr-m.Base < uint64(m.Size)
}

// Session attaches PDBs at module base addresses and answers symbol and
// type queries against them. It implements typedesc.TypeInfoProvider and is
// safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	modules    map[uint64]*Module
	nextBase   uint64
	searchPath []string
	options    SymbolOptions
	capacity   int
	logger     *slog.Logger
}

var _ typedesc.TypeInfoProvider = (*Session)(nil)

// NewSession returns an empty session. Without WithSearchPath the search
// path comes from DefaultSearchPath.
func NewSession(opts ...Option) *Session {
	s := &Session{
		modules:  make(map[uint64]*Module),
		nextBase: firstSyntheticBase,
		options:  DefaultOptions,
		capacity: typedesc.MaxChildren,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.searchPath == nil && s.options&OptIgnoreNtSymPath == 0 {
		s.searchPath = DefaultSearchPath()
	}
	return s
}

// Options returns the session's symbol options.
func (s *Session) Options() SymbolOptions { return s.options }

// SearchPath returns the directories searched for modules.
func (s *Session) SearchPath() []string { return slices.Clone(s.searchPath) }

// DefaultSearchPath derives a search path from _NT_SYMBOL_PATH. A plain
// value is used as a ';'-separated list of directories. A value containing
// '*' (srv*cache*url) yields the local cache directory, or the user's home
// directory when the cache element is empty.
func DefaultSearchPath() []string {
	path := os.Getenv("_NT_SYMBOL_PATH")
	if path == "" {
		return nil
	}
	if i := strings.IndexByte(path, '*'); i >= 0 {
		rest := path[i+1:]
		if j := strings.IndexByte(rest, '*'); j >= 0 {
			rest = rest[:j]
		}
		path = rest
		if strings.TrimSpace(path) == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil
			}
			return []string{home}
		}
	}
	var dirs []string
	for _, d := range strings.Split(path, ";") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// locate finds image, or the PDB next to it, directly or on the search
// path. Search directories are tried flat and in symbol-store layout
// (dir/name.pdb/<key>/name.pdb).
func (s *Session) locate(image string) (string, error) {
	names := []string{image}
	if ext := filepath.Ext(image); !strings.EqualFold(ext, ".pdb") {
		names = append(names, strings.TrimSuffix(image, ext)+".pdb")
	}
	for _, n := range names {
		if isFile(n) {
			return n, nil
		}
	}
	for _, dir := range s.searchPath {
		for _, n := range names {
			base := filepath.Base(n)
			if p := filepath.Join(dir, base); isFile(p) {
				return p, nil
			}
			matches, _ := filepath.Glob(filepath.Join(dir, base, "*", base))
			for _, p := range matches {
				if isFile(p) {
					return p, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%s not found on search path: %w", image, fs.ErrNotExist)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// LoadModule opens the PDB for image and attaches it at base. A base of 0
// assigns a synthetic base. The name defaults to the file name without its
// extension. It returns the base the module was attached at.
func (s *Session) LoadModule(image string, base uint64, name string) (uint64, error) {
	path, err := s.locate(image)
	if err != nil {
		return 0, err
	}
	p, err := Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	base, err = s.attach(p, base, name, path)
	if err != nil {
		p.Close()
		return 0, err
	}
	return base, nil
}

// LoadPDB attaches an already opened PDB. The session takes ownership and
// closes it on UnloadModule.
func (s *Session) LoadPDB(p *PDB, base uint64, name string) (uint64, error) {
	return s.attach(p, base, name, "")
}

func (s *Session) attach(p *PDB, base uint64, name, path string) (uint64, error) {
	s.mu.Lock()
	if base == 0 {
		base = s.allocBase()
	} else if _, used := s.modules[base]; used {
		s.mu.Unlock()
		return 0, fmt.Errorf("base %#x: %w", base, ErrBaseInUse)
	}
	// Reserve the base while the module's tables are built.
	s.modules[base] = nil
	s.mu.Unlock()

	m := s.newModule(p, base, name, path)

	s.mu.Lock()
	s.modules[base] = m
	s.mu.Unlock()

	log := s.logger.With("module", name, "base", fmt.Sprintf("%#x", base))
	for _, w := range p.Warnings() {
		log.Warn("incomplete debug information", "err", w)
	}
	log.Info("module loaded", "path", path, "types", p.TypeCount(), "symbols", len(m.symbols))
	return base, nil
}

func (s *Session) allocBase() uint64 {
	for {
		b := s.nextBase
		s.nextBase += syntheticBaseStep
		if _, used := s.modules[b]; !used {
			return b
		}
	}
}

func (s *Session) newModule(p *PDB, base uint64, name, path string) *Module {
	m := &Module{
		Base:  base,
		Name:  name,
		Path:  path,
		Size:  p.ImageSize(),
		pdb:   p,
		table: p.TypeTable(),
	}
	display := func(raw string) string {
		if s.options&OptUndecorateNames != 0 {
			raw = Undecorate(raw)
		}
		return typedesc.TruncateName(raw)
	}
	addr := func(rva uint32) uint64 { return base + uint64(rva) }

	publicsOnly := s.options&OptPublicsOnly != 0
	if !publicsOnly {
		for _, f := range p.Functions() {
			m.symbols = append(m.symbols, typedesc.SymbolInfo{
				TypeIndex:  f.TypeIndex,
				Size:       sizeInt(uint64(f.Length)),
				ModuleBase: base,
				Flags:      typedesc.FlagFunction,
				Address:    addr(f.RVA),
				Tag:        typedesc.TagFunction,
				Name:       display(f.Name),
			})
		}
		for _, v := range p.Variables() {
			var flags typedesc.SymbolFlags
			if v.ThreadLocal {
				flags |= typedesc.FlagTLSRelative
			}
			m.symbols = append(m.symbols, typedesc.SymbolInfo{
				TypeIndex:  v.TypeIndex,
				Size:       sizeInt(v.Size),
				ModuleBase: base,
				Flags:      flags,
				Address:    addr(v.RVA),
				Tag:        typedesc.TagData,
				Name:       display(v.Name),
			})
		}
		for _, c := range p.Constants() {
			size, _ := p.resolver.TypeSize(c.TypeIndex)
			m.symbols = append(m.symbols, typedesc.SymbolInfo{
				TypeIndex:  c.TypeIndex,
				Size:       sizeInt(size),
				ModuleBase: base,
				Flags:      typedesc.FlagConstant | typedesc.FlagValuePresent,
				Value:      c.Value,
				Tag:        typedesc.TagData,
				Name:       display(c.Name),
			})
		}
	}
	if publicsOnly || s.options&OptNoPublics == 0 {
		for _, pub := range p.PublicSymbols() {
			flags := typedesc.FlagExport
			if pub.IsFunction {
				flags |= typedesc.FlagPublicCode
			}
			m.symbols = append(m.symbols, typedesc.SymbolInfo{
				ModuleBase: base,
				Flags:      flags,
				Address:    addr(pub.RVA),
				Tag:        typedesc.TagPublicSymbol,
				Name:       display(pub.Name),
			})
		}
	}
	slices.SortStableFunc(m.symbols, func(a, b typedesc.SymbolInfo) int {
		return cmp.Compare(a.Address, b.Address)
	})

	for _, idx := range m.table.Named() {
		if sym, err := m.table.Symbol(idx); err == nil {
			sym.ModuleBase = base
			m.types = append(m.types, sym)
		}
	}
	for _, td := range p.Typedefs() {
		m.types = append(m.types, typedesc.SymbolInfo{
			TypeIndex:  td.TypeIndex,
			Index:      td.TypeIndex,
			Size:       m.table.sizeOf(td.TypeIndex),
			ModuleBase: base,
			Tag:        typedesc.TagTypedef,
			Name:       typedesc.TruncateName(td.Name),
		})
	}
	return m
}

// UnloadModule detaches and closes the module at base.
func (s *Session) UnloadModule(base uint64) error {
	s.mu.Lock()
	m, ok := s.modules[base]
	if ok && m != nil {
		delete(s.modules, base)
	}
	s.mu.Unlock()
	if !ok || m == nil {
		return fmt.Errorf("base %#x: %w", base, ErrModuleNotLoaded)
	}
	return m.pdb.Close()
}

// Modules returns the attached modules ordered by base.
func (s *Session) Modules() []*Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mods := make([]*Module, 0, len(s.modules))
	for _, m := range s.modules {
		if m != nil {
			mods = append(mods, m)
		}
	}
	slices.SortFunc(mods, func(a, b *Module) int { return cmp.Compare(a.Base, b.Base) })
	return mods
}

// Close unloads every module.
func (s *Session) Close() error {
	var errs []error
	for _, m := range s.Modules() {
		errs = append(errs, s.UnloadModule(m.Base))
	}
	return errors.Join(errs...)
}

func (s *Session) module(base uint64) (*Module, error) {
	s.mu.RLock()
	m := s.modules[base]
	s.mu.RUnlock()
	if m == nil {
		return nil, fmt.Errorf("base %#x: %w: %w", base, ErrModuleNotLoaded, typedesc.ErrNotFound)
	}
	return m, nil
}

// modulesFor selects base's module, or every module whose name matches
// modMask when base is 0.
func (s *Session) modulesFor(base uint64, modMask string) ([]*Module, error) {
	if base != 0 {
		m, err := s.module(base)
		if err != nil {
			return nil, err
		}
		return []*Module{m}, nil
	}
	var out []*Module
	for _, m := range s.Modules() {
		if modMask == "" || matchMask(modMask, m.Name, true) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Session) caseInsensitive() bool { return s.options&OptCaseInsensitive != 0 }

// BuildDescriptor builds the layout of the type at index in the module at
// base, or returns nil when the type has no children count.
func (s *Session) BuildDescriptor(base uint64, index uint32) *typedesc.StructDescriptor {
	b := typedesc.Builder{Provider: s, Capacity: s.capacity, Logger: s.logger}
	return b.BuildDescriptor(base, index)
}

// EnumSymbols lists the symbols whose names match mask, in address order
// per module. The mask may name modules as "module!symbol"; base 0 means
// every module.
func (s *Session) EnumSymbols(base uint64, mask string) ([]typedesc.SymbolInfo, error) {
	modMask, symMask := splitMask(mask)
	mods, err := s.modulesFor(base, modMask)
	if err != nil {
		return nil, err
	}
	var out []typedesc.SymbolInfo
	for _, m := range mods {
		for _, sym := range m.symbols {
			if matchMask(symMask, sym.Name, s.caseInsensitive()) {
				out = append(out, sym)
			}
		}
	}
	return out, nil
}

// EnumTypes lists the named structures, unions, enums and typedefs whose
// names match mask.
func (s *Session) EnumTypes(base uint64, mask string) ([]typedesc.SymbolInfo, error) {
	modMask, typeMask := splitMask(mask)
	mods, err := s.modulesFor(base, modMask)
	if err != nil {
		return nil, err
	}
	var out []typedesc.SymbolInfo
	for _, m := range mods {
		for _, sym := range m.types {
			if matchMask(typeMask, sym.Name, s.caseInsensitive()) {
				out = append(out, sym)
			}
		}
	}
	return out, nil
}

// EnumSourceFiles lists the source files whose paths match mask.
func (s *Session) EnumSourceFiles(base uint64, mask string) ([]SourceFile, error) {
	modMask, fileMask := splitMask(mask)
	mods, err := s.modulesFor(base, modMask)
	if err != nil {
		return nil, err
	}
	var out []SourceFile
	for _, m := range mods {
		for _, f := range m.pdb.SourceFiles() {
			if matchMask(fileMask, f.Path, true) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// SymbolFromName finds a symbol by exact name, optionally qualified as
// "module!name". Private symbols are preferred over publics.
func (s *Session) SymbolFromName(name string) (typedesc.SymbolInfo, error) {
	modMask, symName := splitMask(name)
	mods, err := s.modulesFor(0, modMask)
	if err != nil {
		return typedesc.SymbolInfo{}, err
	}
	var public *typedesc.SymbolInfo
	for _, m := range mods {
		for i := range m.symbols {
			sym := &m.symbols[i]
			if !s.sameName(sym.Name, symName) {
				continue
			}
			if sym.Tag != typedesc.TagPublicSymbol {
				return *sym, nil
			}
			if public == nil {
				public = sym
			}
		}
	}
	if public != nil {
		return *public, nil
	}
	return typedesc.SymbolInfo{}, fmt.Errorf("symbol %q: %w", name, typedesc.ErrNotFound)
}

func (s *Session) sameName(a, b string) bool {
	if s.caseInsensitive() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// SymbolFromAddress returns the nearest symbol at or below addr in the
// module containing addr, and the displacement of addr from it. Among
// symbols sharing an address, private symbols are preferred over publics.
func (s *Session) SymbolFromAddress(addr uint64) (typedesc.SymbolInfo, uint64, error) {
	for _, m := range s.Modules() {
		if !m.contains(addr) {
			continue
		}
		i, found := slices.BinarySearchFunc(m.symbols, addr, func(sym typedesc.SymbolInfo, a uint64) int {
			return cmp.Compare(sym.Address, a)
		})
		if !found {
			if i == 0 || m.symbols[i-1].Address == 0 {
				break
			}
			// Step back to the first symbol of the preceding address.
			at := m.symbols[i-1].Address
			for i--; i > 0 && m.symbols[i-1].Address == at; i-- {
			}
		}
		best := m.symbols[i]
		for j := i; j < len(m.symbols) && m.symbols[j].Address == best.Address; j++ {
			if m.symbols[j].Tag != typedesc.TagPublicSymbol {
				best = m.symbols[j]
				break
			}
		}
		return best, addr - best.Address, nil
	}
	return typedesc.SymbolInfo{}, 0, fmt.Errorf("address %#x: %w", addr, typedesc.ErrNotFound)
}

// TypeIndexFromName finds a structure, union, enum or typedef by name in
// the module at base.
func (s *Session) TypeIndexFromName(base uint64, name string) (uint32, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	if idx, ok := m.table.Lookup(name, s.caseInsensitive()); ok {
		return idx, nil
	}
	for _, td := range m.pdb.Typedefs() {
		if s.sameName(td.Name, name) {
			return td.TypeIndex, nil
		}
	}
	return 0, fmt.Errorf("type %q: %w", name, typedesc.ErrNotFound)
}

// TypeFromName is TypeIndexFromName followed by SymbolByIndex.
func (s *Session) TypeFromName(base uint64, name string) (typedesc.SymbolInfo, error) {
	idx, err := s.TypeIndexFromName(base, name)
	if err != nil {
		return typedesc.SymbolInfo{}, err
	}
	return s.SymbolByIndex(base, idx)
}

func (s *Session) ChildrenCount(base uint64, index uint32) (int, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.ChildrenCount(index)
}

func (s *Session) Length(base uint64, index uint32) (uint64, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.Length(index)
}

func (s *Session) FindChildren(base uint64, index uint32, capacity int) ([]uint32, error) {
	m, err := s.module(base)
	if err != nil {
		return nil, err
	}
	return m.table.FindChildren(index, capacity)
}

func (s *Session) SymbolByIndex(base uint64, index uint32) (typedesc.SymbolInfo, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.SymbolInfo{}, err
	}
	sym, err := m.table.Symbol(index)
	if err != nil {
		return typedesc.SymbolInfo{}, err
	}
	sym.ModuleBase = base
	return sym, nil
}

func (s *Session) Offset(base uint64, index uint32) (uint32, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.Offset(index)
}

func (s *Session) Tag(base uint64, index uint32) (typedesc.SymbolTag, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.TagNull, err
	}
	return m.table.Tag(index)
}

func (s *Session) ConstantValue(base uint64, index uint32) (typedesc.Variant, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.Variant{}, err
	}
	return m.table.ConstantValue(index)
}

func (s *Session) Name(base uint64, index uint32) (string, error) {
	m, err := s.module(base)
	if err != nil {
		return "", err
	}
	return m.table.Name(index)
}

func (s *Session) TypeID(base uint64, index uint32) (uint32, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.TypeID(index)
}

func (s *Session) UdtKind(base uint64, index uint32) (typedesc.UdtKind, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.UdtUnknown, err
	}
	return m.table.UdtKind(index)
}

func (s *Session) BaseType(base uint64, index uint32) (typedesc.BasicType, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.BasicNoType, err
	}
	return m.table.BaseType(index)
}

func (s *Session) DataKind(base uint64, index uint32) (typedesc.DataKind, error) {
	m, err := s.module(base)
	if err != nil {
		return typedesc.DataUnknown, err
	}
	return m.table.DataKind(index)
}

func (s *Session) BitPosition(base uint64, index uint32) (int, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.BitPosition(index)
}

func (s *Session) Count(base uint64, index uint32) (int, error) {
	m, err := s.module(base)
	if err != nil {
		return 0, err
	}
	return m.table.Count(index)
}

// splitMask separates the module part of a "module!name" mask. An empty
// name part matches everything.
func splitMask(mask string) (module, name string) {
	if i := strings.IndexByte(mask, '!'); i >= 0 {
		module, mask = mask[:i], mask[i+1:]
	}
	if mask == "" {
		mask = "*"
	}
	return module, mask
}

// matchMask reports whether name matches a mask where '*' matches any run
// of characters and '?' matches exactly one.
func matchMask(mask, name string, fold bool) bool {
	if fold {
		c := cases.Fold()
		mask, name = c.String(mask), c.String(name)
	}
	m, n := []rune(mask), []rune(name)
	mi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case mi < len(m) && (m[mi] == '?' || m[mi] == n[ni]):
			mi++
			ni++
		case mi < len(m) && m[mi] == '*':
			star, mark = mi, ni
			mi++
		case star >= 0:
			mi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for mi < len(m) && m[mi] == '*' {
		mi++
	}
	return mi == len(m)
}
