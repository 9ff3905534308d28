package msf

import (
	"fmt"
	"io"
)

// Stream is one logical stream of an MSF file, stored in possibly
// non-contiguous blocks.
type Stream struct {
	msf    *MSF
	size   uint32
	blocks []uint32
}

// Size returns the size of the stream in bytes.
func (s *Stream) Size() uint32 { return s.size }

// Blocks returns the block indices that make up this stream.
func (s *Stream) Blocks() []uint32 { return s.blocks }

// ReadAt implements io.ReaderAt over the stream's logical byte range.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(s.size) {
		return 0, io.EOF
	}

	bs := int64(s.msf.sb.BlockSize)
	n := 0
	for n < len(p) && off < int64(s.size) {
		block := s.blocks[off/bs]
		within := off % bs
		chunk := min(int64(len(p)-n), bs-within, int64(s.size)-off)

		read, err := s.msf.r.ReadAt(p[n:n+int(chunk)], s.msf.blockOffset(block)+within)
		n += read
		off += int64(read)
		if err != nil && (err != io.EOF || int64(read) < chunk) {
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Reader returns a seekable reader over the whole stream.
func (s *Stream) Reader() *io.SectionReader {
	return io.NewSectionReader(s, 0, int64(s.size))
}

// ReadAll reads the entire stream.
func (s *Stream) ReadAll() ([]byte, error) {
	data := make([]byte, s.size)
	if _, err := io.ReadFull(s.Reader(), data); err != nil {
		return nil, err
	}
	return data, nil
}
