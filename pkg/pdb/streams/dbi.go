package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// DBI Stream versions
const (
	DBIStreamVersionVC41 = 930803
	DBIStreamVersionV50  = 19960307
	DBIStreamVersionV60  = 19970606
	DBIStreamVersionV70  = 19990903
	DBIStreamVersionV110 = 20091201
)

// Machine types
const (
	MachineUnknown = 0x0000
	MachineI386    = 0x014c
	MachineIA64    = 0x0200
	MachineAMD64   = 0x8664
	MachineARM     = 0x01c0
	MachineARMNT   = 0x01c4
	MachineARM64   = 0xAA64
)

// Optional debug header slots, each holding a stream index or 0xFFFF.
const (
	DbgFPO = iota
	DbgException
	DbgFixup
	DbgOmapToSrc
	DbgOmapFromSrc
	DbgSectionHdr
	DbgTokenRidMap
	DbgXdata
	DbgPdata
	DbgNewFPO
	DbgSectionHdrOrig
)

// NoStream marks an absent stream reference.
const NoStream = 0xFFFF

const dbiHeaderSize = 64

// DBIHeader is the fixed header of the DBI stream.
type DBIHeader struct {
	VersionSignature        int32 // always -1
	VersionHeader           uint32
	Age                     uint32
	GlobalStreamIndex       uint16
	BuildNumber             uint16
	PublicStreamIndex       uint16
	PdbDllVersion           uint16
	SymRecordStream         uint16
	PdbDllRbld              uint16
	ModInfoSize             int32
	SectionContributionSize int32
	SectionMapSize          int32
	SourceInfoSize          int32
	TypeServerMapSize       int32
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   int32
	ECSubstreamSize         int32
	Flags                   uint16
	Machine                 uint16
	Padding                 uint32
}

// DBIStream is the parsed DBI stream.
type DBIStream struct {
	Header          DBIHeader
	Modules         []ModuleInfo
	SectionContribs []SectionContrib
	// DebugStreams holds the optional debug header, indexed by the Dbg* slots.
	DebugStreams []uint16
}

// SectionContrib describes a section contribution from a module.
type SectionContrib struct {
	Section         uint16
	Padding1        uint16
	Offset          int32
	Size            int32
	Characteristics uint32
	ModuleIndex     uint16
	Padding2        uint16
	DataCrc         uint32
	RelocCrc        uint32
}

// moduleInfoHeader is the fixed prefix of a module info record.
type moduleInfoHeader struct {
	Unused1              uint32
	SectionContrib       SectionContrib
	Flags                uint16
	ModuleSymStream      uint16
	SymByteSize          uint32
	C11ByteSize          uint32
	C13ByteSize          uint32
	SourceFileCount      uint16
	Padding              uint16
	Unused2              uint32
	SourceFileNameIndex  uint32
	PdbFilePathNameIndex uint32
}

const moduleInfoHeaderSize = 64

// ModuleInfo describes one compiland.
type ModuleInfo struct {
	moduleInfoHeader
	ModuleName  string
	ObjFileName string
	// SourceFiles is filled from the file info substream.
	SourceFiles []string
}

const sectionContribV2 = 0xeffe0000 + 20140516

// ReadDBIStream parses the DBI stream. Substreams follow the header in the
// order module info, section contributions, section map, file info, type
// server map, EC, optional debug header.
func ReadDBIStream(data []byte) (*DBIStream, error) {
	if len(data) < dbiHeaderSize {
		return nil, fmt.Errorf("DBI stream too small: %d bytes", len(data))
	}

	var header DBIHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read DBI header: %w", err)
	}
	if header.VersionSignature != -1 {
		return nil, fmt.Errorf("invalid DBI version signature: %d", header.VersionSignature)
	}

	sizes := []int32{
		header.ModInfoSize,
		header.SectionContributionSize,
		header.SectionMapSize,
		header.SourceInfoSize,
		header.TypeServerMapSize,
		header.ECSubstreamSize,
		header.OptionalDbgHeaderSize,
	}
	subs := make([][]byte, len(sizes))
	offset := dbiHeaderSize
	for i, sz := range sizes {
		n, err := safecast.Conv[int](sz)
		if err != nil || offset+n > len(data) {
			return nil, fmt.Errorf("DBI substream %d (%d bytes at %d) overruns stream", i, sz, offset)
		}
		subs[i] = data[offset : offset+n]
		offset += n
	}
	modInfo, secContrib, fileInfo, dbgHeader := subs[0], subs[1], subs[3], subs[6]

	dbi := &DBIStream{Header: header}

	modules, err := parseModuleInfo(modInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module info: %w", err)
	}
	dbi.Modules = modules
	dbi.SectionContribs = parseSectionContribs(secContrib)

	if err := parseFileInfo(fileInfo, dbi.Modules); err != nil {
		return nil, fmt.Errorf("failed to parse file info: %w", err)
	}

	dbi.DebugStreams = make([]uint16, len(dbgHeader)/2)
	if err := binary.Read(bytes.NewReader(dbgHeader), binary.LittleEndian, dbi.DebugStreams); err != nil {
		return nil, fmt.Errorf("failed to read optional debug header: %w", err)
	}

	return dbi, nil
}

// DebugStream returns the stream index stored in an optional debug header
// slot, or false when absent.
func (d *DBIStream) DebugStream(slot int) (uint16, bool) {
	if slot < 0 || slot >= len(d.DebugStreams) || d.DebugStreams[slot] == NoStream {
		return 0, false
	}
	return d.DebugStreams[slot], true
}

func parseModuleInfo(data []byte) ([]ModuleInfo, error) {
	var modules []ModuleInfo
	offset := 0
	for offset+moduleInfoHeaderSize <= len(data) {
		var mod ModuleInfo
		if err := binary.Read(bytes.NewReader(data[offset:]), binary.LittleEndian, &mod.moduleInfoHeader); err != nil {
			return modules, err
		}
		offset += moduleInfoHeaderSize

		var n int
		mod.ModuleName, n = ParseString(data[offset:])
		offset += n
		mod.ObjFileName, n = ParseString(data[offset:])
		offset += n

		offset = (offset + 3) &^ 3
		modules = append(modules, mod)
	}
	return modules, nil
}

func parseSectionContribs(data []byte) []SectionContrib {
	if len(data) < 4 {
		return nil
	}
	version := binary.LittleEndian.Uint32(data)
	entrySize := 28
	if version == sectionContribV2 {
		entrySize = 32 // trailing ISectCoff
	}

	var contribs []SectionContrib
	for off := 4; off+entrySize <= len(data); off += entrySize {
		var c SectionContrib
		if binary.Read(bytes.NewReader(data[off:off+28]), binary.LittleEndian, &c) != nil {
			break
		}
		contribs = append(contribs, c)
	}
	return contribs
}

// parseFileInfo fills ModuleInfo.SourceFiles. Layout: NumModules u16,
// NumSourceFiles u16, ModIndices [NumModules]u16, ModFileCounts
// [NumModules]u16, FileNameOffsets [sum]u32, names buffer.
func parseFileInfo(data []byte, modules []ModuleInfo) error {
	if len(data) < 4 {
		return nil
	}
	numModules := int(binary.LittleEndian.Uint16(data))
	pos := 4 + numModules*2 // skip ModIndices
	if pos+numModules*2 > len(data) {
		return fmt.Errorf("file info header for %d modules truncated", numModules)
	}

	counts := make([]int, numModules)
	total := 0
	for i := range counts {
		counts[i] = int(binary.LittleEndian.Uint16(data[pos+i*2:]))
		total += counts[i]
	}
	pos += numModules * 2

	if pos+total*4 > len(data) {
		return fmt.Errorf("file name offsets for %d files truncated", total)
	}
	offsets := data[pos : pos+total*4]
	names := data[pos+total*4:]

	next := 0
	for i, count := range counts {
		if i >= len(modules) {
			break
		}
		files := make([]string, 0, count)
		for j := 0; j < count; j++ {
			off := binary.LittleEndian.Uint32(offsets[(next+j)*4:])
			if int64(off) >= int64(len(names)) {
				continue
			}
			name, _ := ParseString(names[off:])
			files = append(files, name)
		}
		modules[i].SourceFiles = files
		next += count
	}
	return nil
}

// MachineTypeName returns the human-readable name for a machine type.
func MachineTypeName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM, MachineARMNT:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	default:
		return fmt.Sprintf("0x%04x", machine)
	}
}

// HasSymbols returns true if the module has a symbol stream.
func (m *ModuleInfo) HasSymbols() bool {
	return m.ModuleSymStream != NoStream && m.SymByteSize > 0
}
