// Package streams provides parsers for the various PDB streams.
package streams

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PDB Stream versions
const (
	PDBStreamVersionVC2     = 19941610
	PDBStreamVersionVC4     = 19950623
	PDBStreamVersionVC41    = 19950814
	PDBStreamVersionVC50    = 19960307
	PDBStreamVersionVC98    = 19970604
	PDBStreamVersionVC70Dep = 19990604
	PDBStreamVersionVC70    = 20000404
	PDBStreamVersionVC80    = 20030901
	PDBStreamVersionVC110   = 20091201
	PDBStreamVersionVC140   = 20140508
)

// PDBInfoHeader is the fixed header at the start of the PDB info stream.
type PDBInfoHeader struct {
	Version   uint32
	Signature uint32 // creation timestamp
	Age       uint32 // bumped on every rewrite
	GUID      [16]byte
}

// PDBInfo is the parsed PDB Info Stream (stream 1).
type PDBInfo struct {
	PDBInfoHeader
	NamedStreams map[string]uint32
}

// ReadPDBInfo parses the PDB info stream. The named stream map is optional
// in older files; a truncated map yields the entries read so far.
func ReadPDBInfo(r io.Reader) (*PDBInfo, error) {
	info := &PDBInfo{NamedStreams: make(map[string]uint32)}
	if err := binary.Read(r, binary.LittleEndian, &info.PDBInfoHeader); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}
	readNamedStreams(r, info.NamedStreams)
	return info, nil
}

// readNamedStreams decodes the serialized hash table
// StringBufSize, StringBuf, Size, Capacity, Present, Deleted, (key, value)*.
func readNamedStreams(r io.Reader, into map[string]uint32) {
	var strBufSize uint32
	if binary.Read(r, binary.LittleEndian, &strBufSize) != nil {
		return
	}
	strBuf := make([]byte, strBufSize)
	if _, err := io.ReadFull(r, strBuf); err != nil {
		return
	}

	var sizes struct{ Size, Capacity uint32 }
	if binary.Read(r, binary.LittleEndian, &sizes) != nil {
		return
	}
	present, err := readBitVector(r)
	if err != nil {
		return
	}
	if _, err := readBitVector(r); err != nil {
		return
	}

	for i := uint32(0); i < sizes.Capacity; i++ {
		if !isBitSet(present, i) {
			continue
		}
		var kv struct{ KeyOffset, StreamIndex uint32 }
		if binary.Read(r, binary.LittleEndian, &kv) != nil {
			return
		}
		if kv.KeyOffset < strBufSize {
			name, _ := ParseString(strBuf[kv.KeyOffset:])
			into[name] = kv.StreamIndex
		}
	}
}

func readBitVector(r io.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	words := make([]uint32, n)
	if err := binary.Read(r, binary.LittleEndian, words); err != nil {
		return nil, err
	}
	return words, nil
}

// GUIDString returns the GUID in the form used by symbol server paths.
func (p *PDBInfo) GUIDString() string {
	return fmt.Sprintf("%08X%04X%04X%X",
		binary.LittleEndian.Uint32(p.GUID[0:4]),
		binary.LittleEndian.Uint16(p.GUID[4:6]),
		binary.LittleEndian.Uint16(p.GUID[6:8]),
		p.GUID[8:16])
}

// SymbolServerKey returns the GUID followed by the hex age, the directory
// name a symbol store files this PDB under.
func (p *PDBInfo) SymbolServerKey() string {
	return fmt.Sprintf("%s%X", p.GUIDString(), p.Age)
}

func isBitSet(words []uint32, n uint32) bool {
	wordIdx := n / 32
	if wordIdx >= uint32(len(words)) {
		return false
	}
	return words[wordIdx]&(1<<(n%32)) != 0
}
