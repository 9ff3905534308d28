package streams

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"strings"
)

// SectionHeaderSize is the size of one IMAGE_SECTION_HEADER.
const SectionHeaderSize = 40

// Section is a PE section copied into the PDB.
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics uint32
}

// ReadSectionHeaders parses the section header stream referenced by the DBI
// optional debug header.
func ReadSectionHeaders(data []byte) ([]Section, error) {
	if len(data)%SectionHeaderSize != 0 {
		return nil, fmt.Errorf("section header stream size %d is not a multiple of %d", len(data), SectionHeaderSize)
	}
	raw := make([]pe.SectionHeader32, len(data)/SectionHeaderSize)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("failed to read section headers: %w", err)
	}

	sections := make([]Section, len(raw))
	for i, h := range raw {
		sections[i] = Section{
			Name:            strings.TrimRight(string(h.Name[:]), "\x00"),
			VirtualAddress:  h.VirtualAddress,
			VirtualSize:     h.VirtualSize,
			Characteristics: h.Characteristics,
		}
	}
	return sections, nil
}

// RVA converts a 1-based section number and offset to a relative virtual
// address.
func RVA(sections []Section, segment uint16, offset uint32) (uint32, bool) {
	if segment == 0 || int(segment) > len(sections) {
		return 0, false
	}
	return sections[segment-1].VirtualAddress + offset, true
}

// SectionOf maps a relative virtual address back to a 1-based section number
// and offset.
func SectionOf(sections []Section, rva uint32) (uint16, uint32, bool) {
	for i, s := range sections {
		size := max(s.VirtualSize, 1)
		if rva >= s.VirtualAddress && rva-s.VirtualAddress < size {
			return uint16(i + 1), rva - s.VirtualAddress, true
		}
	}
	return 0, 0, false
}
