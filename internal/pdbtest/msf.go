// Package pdbtest writes small, well-formed PDB images for tests.
package pdbtest

import (
	"encoding/binary"
)

// BlockSize is the MSF block size used by WriteMSF.
const BlockSize = 512

var msfMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// WriteMSF lays out streams in an MSF 7.00 container. A nil stream is
// written as deleted; an empty non-nil stream has size zero.
func WriteMSF(streams [][]byte) []byte {
	// Block 0 superblock, blocks 1 and 2 free page maps.
	next := uint32(3)
	var data []byte
	alloc := func(payload []byte) []uint32 {
		var blocks []uint32
		for off := 0; off < len(payload); off += BlockSize {
			blocks = append(blocks, next)
			next++
			chunk := make([]byte, BlockSize)
			copy(chunk, payload[off:])
			data = append(data, chunk...)
		}
		return blocks
	}

	dir := binary.LittleEndian.AppendUint32(nil, uint32(len(streams)))
	for _, s := range streams {
		if s == nil {
			dir = binary.LittleEndian.AppendUint32(dir, 0xFFFFFFFF)
			continue
		}
		dir = binary.LittleEndian.AppendUint32(dir, uint32(len(s)))
	}
	for _, s := range streams {
		for _, b := range alloc(s) {
			dir = binary.LittleEndian.AppendUint32(dir, b)
		}
	}

	var blockMap []byte
	for _, b := range alloc(dir) {
		blockMap = binary.LittleEndian.AppendUint32(blockMap, b)
	}
	mapBlock := alloc(blockMap)[0]

	sb := make([]byte, 0, BlockSize)
	sb = append(sb, msfMagic...)
	sb = binary.LittleEndian.AppendUint32(sb, BlockSize)
	sb = binary.LittleEndian.AppendUint32(sb, 1)
	sb = binary.LittleEndian.AppendUint32(sb, next)
	sb = binary.LittleEndian.AppendUint32(sb, uint32(len(dir)))
	sb = binary.LittleEndian.AppendUint32(sb, 0)
	sb = binary.LittleEndian.AppendUint32(sb, mapBlock)

	out := make([]byte, 3*BlockSize, int(next)*BlockSize)
	copy(out, sb)
	return append(out, data...)
}
