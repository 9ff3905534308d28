// Package pdb provides high-level access to Microsoft PDB debug files, the
// per-module type table used to build struct layouts, and a symbol session
// that attaches PDBs at module base addresses.
package pdb

// Function is a procedure symbol.
type Function struct {
	Name          string `json:"name"`
	DemangledName string `json:"demangled_name,omitempty"`
	Offset        uint32 `json:"offset"`
	Segment       uint16 `json:"segment"`
	RVA           uint32 `json:"rva"`
	Length        uint32 `json:"length"`
	TypeIndex     uint32 `json:"type_index"`
	Signature     string `json:"signature"`
	IsGlobal      bool   `json:"is_global"`
	Module        string `json:"module,omitempty"`
}

// Variable is a global, static or thread-local data symbol.
type Variable struct {
	Name          string `json:"name"`
	DemangledName string `json:"demangled_name,omitempty"`
	Offset        uint32 `json:"offset"`
	Segment       uint16 `json:"segment"`
	RVA           uint32 `json:"rva"`
	TypeIndex     uint32 `json:"type_index"`
	TypeName      string `json:"type_name"`
	Size          uint64 `json:"size,omitempty"`
	IsGlobal      bool   `json:"is_global"`
	ThreadLocal   bool   `json:"thread_local,omitempty"`
	Module        string `json:"module,omitempty"`
}

// Constant is a named S_CONSTANT.
type Constant struct {
	Name      string `json:"name"`
	TypeIndex uint32 `json:"type_index"`
	TypeName  string `json:"type_name"`
	Value     int64  `json:"value"`
}

// Typedef is an S_UDT naming a type.
type Typedef struct {
	Name      string `json:"name"`
	TypeIndex uint32 `json:"type_index"`
}

// TypeInfo describes one type record.
type TypeInfo struct {
	Index     uint32   `json:"index"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Size      uint64   `json:"size,omitempty"`
	Signature string   `json:"signature"`
	Members   []Member `json:"members,omitempty"`
}

// Member is a data member, base class or enumerator of a TypeInfo.
type Member struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
	Offset   uint64 `json:"offset"`
	Value    *int64 `json:"value,omitempty"` // enumerators only
}

// PublicSymbol is an S_PUB32 record.
type PublicSymbol struct {
	Name          string `json:"name"`
	DemangledName string `json:"demangled_name,omitempty"`
	Offset        uint32 `json:"offset"`
	Segment       uint16 `json:"segment"`
	RVA           uint32 `json:"rva"`
	IsFunction    bool   `json:"is_function,omitempty"`
}

// SectionInfo is a PE section of the image the PDB describes.
type SectionInfo struct {
	Index           uint16 `json:"index"` // 1-based, as used by symbol segments
	Name            string `json:"name,omitempty"`
	Offset          uint32 `json:"offset"`
	Length          uint32 `json:"length"`
	Characteristics uint32 `json:"characteristics"`
}

// ModuleInfo describes one compiland.
type ModuleInfo struct {
	Name         string `json:"name"`
	ObjectFile   string `json:"object_file"`
	SymbolStream uint16 `json:"symbol_stream"`
	SymbolSize   uint32 `json:"symbol_size"`
	SourceFiles  int    `json:"source_files"`
}

// SourceFile is a source file contributing to a module.
type SourceFile struct {
	Module string `json:"module"`
	Path   string `json:"path"`
}

// PDBInfo summarizes a PDB file.
type PDBInfo struct {
	GUID         string            `json:"guid"`
	Age          uint32            `json:"age"`
	Version      uint32            `json:"version"`
	Signature    uint32            `json:"signature"`
	Machine      string            `json:"machine"`
	Streams      int               `json:"streams"`
	Types        int               `json:"types"`
	SymbolKey    string            `json:"symbol_key,omitempty"`
	NamedStreams map[string]uint32 `json:"named_streams,omitempty"`
}
