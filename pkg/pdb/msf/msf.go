package msf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"fortio.org/safecast"
)

// nilStreamSize marks a deleted stream in the directory.
const nilStreamSize = 0xFFFFFFFF

// MSF is an opened MSF container.
type MSF struct {
	r       io.ReaderAt
	closer  io.Closer
	sb      *SuperBlock
	streams []*Stream
}

// Open opens the MSF file at path.
func Open(path string) (*MSF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	m, err := NewMSF(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.closer = f
	return m, nil
}

// NewMSF parses an MSF container from r. The caller keeps ownership of r.
func NewMSF(r io.ReaderAt) (*MSF, error) {
	sb, err := ReadSuperBlock(io.NewSectionReader(r, 0, SuperBlockSize))
	if err != nil {
		return nil, err
	}
	m := &MSF{r: r, sb: sb}

	dir, err := m.readDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}
	if err := m.parseDirectory(dir); err != nil {
		return nil, fmt.Errorf("failed to parse stream directory: %w", err)
	}
	return m, nil
}

// Close releases the underlying file when the MSF was opened by path.
func (m *MSF) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// SuperBlock returns the MSF SuperBlock.
func (m *MSF) SuperBlock() *SuperBlock { return m.sb }

// BlockSize returns the block size used by this file.
func (m *MSF) BlockSize() uint32 { return m.sb.BlockSize }

// NumStreams returns the number of streams in the directory.
func (m *MSF) NumStreams() int { return len(m.streams) }

// Stream returns the stream at index.
func (m *MSF) Stream(index int) (*Stream, error) {
	if index < 0 || index >= len(m.streams) {
		return nil, fmt.Errorf("stream index %d out of range [0, %d)", index, len(m.streams))
	}
	return m.streams[index], nil
}

// ReadStream returns the full contents of the stream at index.
func (m *MSF) ReadStream(index int) ([]byte, error) {
	s, err := m.Stream(index)
	if err != nil {
		return nil, err
	}
	return s.ReadAll()
}

func (m *MSF) blockOffset(block uint32) int64 {
	return int64(block) * int64(m.sb.BlockSize)
}

// readDirectory gathers the directory bytes from the blocks listed in the
// block map.
func (m *MSF) readDirectory() ([]byte, error) {
	n := m.sb.NumDirectoryBlocks()
	if int64(n)*4 > int64(m.sb.BlockSize) {
		return nil, fmt.Errorf("directory needs %d blocks, block map holds %d", n, m.sb.BlockSize/4)
	}
	blockMap := make([]uint32, n)
	mapReader := io.NewSectionReader(m.r, m.blockOffset(m.sb.BlockMapAddr), int64(n)*4)
	if err := binary.Read(mapReader, binary.LittleEndian, blockMap); err != nil {
		return nil, fmt.Errorf("failed to read block map: %w", err)
	}

	dir := make([]byte, m.sb.NumDirectoryBytes)
	bs := int(m.sb.BlockSize)
	for i, block := range blockMap {
		chunk := dir[i*bs : min((i+1)*bs, len(dir))]
		if _, err := m.r.ReadAt(chunk, m.blockOffset(block)); err != nil {
			return nil, fmt.Errorf("failed to read directory block %d: %w", block, err)
		}
	}
	return dir, nil
}

// parseDirectory decodes NumStreams, the stream sizes and each stream's
// block list.
func (m *MSF) parseDirectory(dir []byte) error {
	words := make([]uint32, len(dir)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(dir[i*4:])
	}
	if len(words) == 0 {
		return fmt.Errorf("empty directory")
	}

	numStreams, err := safecast.Conv[int](words[0])
	if err != nil || numStreams > len(words)-1 {
		return fmt.Errorf("stream count %d exceeds directory size", words[0])
	}
	sizes := words[1 : 1+numStreams]
	next := 1 + numStreams

	m.streams = make([]*Stream, numStreams)
	for i, size := range sizes {
		if size == nilStreamSize {
			m.streams[i] = &Stream{msf: m}
			continue
		}
		n := int(blocksFor(size, m.sb.BlockSize))
		if next+n > len(words) {
			return fmt.Errorf("block list for stream %d truncated", i)
		}
		blocks := words[next : next+n]
		for _, b := range blocks {
			if b >= m.sb.NumBlocks {
				return fmt.Errorf("stream %d references block %d beyond %d blocks", i, b, m.sb.NumBlocks)
			}
		}
		m.streams[i] = &Stream{msf: m, size: size, blocks: blocks}
		next += n
	}
	return nil
}
