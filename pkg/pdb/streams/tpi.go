package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// TPI Stream versions
const (
	TPIStreamVersion40  = 19950410
	TPIStreamVersion41  = 19951122
	TPIStreamVersion50  = 19961031
	TPIStreamVersionV70 = 19990903
	TPIStreamVersionV80 = 20040203
)

// First type index (built-in types are below this)
const TypeIndexBegin = 0x1000

// TPIHeaderSize is the encoded size of TPIHeader.
const TPIHeaderSize = 56

// TPIHeader is the header of the TPI and IPI streams.
type TPIHeader struct {
	Version                 uint32
	HeaderSize              uint32
	TypeIndexBegin          uint32
	TypeIndexEnd            uint32
	TypeRecordBytes         uint32
	HashStreamIndex         uint16
	HashAuxStreamIndex      uint16
	HashKeySize             uint32
	NumHashBuckets          uint32
	HashValueBufferOffset   int32
	HashValueBufferLength   uint32
	IndexOffsetBufferOffset int32
	IndexOffsetBufferLength uint32
	HashAdjBufferOffset     int32
	HashAdjBufferLength     uint32
}

// TPIStream is a parsed TPI (or IPI) stream.
type TPIStream struct {
	Header      TPIHeader
	TypeRecords []TypeRecord
	byIndex     map[uint32]int
}

// TypeRecord is a single leaf record.
type TypeRecord struct {
	Index uint32 // type index
	Kind  uint16 // LF_* leaf
	Data  []byte // record bytes following the leaf
}

// ReadTPIStream parses a TPI stream from raw bytes.
func ReadTPIStream(data []byte) (*TPIStream, error) {
	r := bytes.NewReader(data)

	var header TPIHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read TPI header: %w", err)
	}
	if header.Version != TPIStreamVersionV80 && header.Version != TPIStreamVersionV70 {
		return nil, fmt.Errorf("unsupported TPI version: %d", header.Version)
	}
	if header.TypeIndexEnd < header.TypeIndexBegin {
		return nil, fmt.Errorf("TPI index range [%#x, %#x) is inverted", header.TypeIndexBegin, header.TypeIndexEnd)
	}
	if header.HeaderSize > TPIHeaderSize {
		if _, err := r.Seek(int64(header.HeaderSize), io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to skip TPI header: %w", err)
		}
	}

	recordData := make([]byte, header.TypeRecordBytes)
	if _, err := io.ReadFull(r, recordData); err != nil {
		return nil, fmt.Errorf("failed to read type records: %w", err)
	}

	tpi := &TPIStream{
		Header:  header,
		byIndex: make(map[uint32]int),
	}

	offset := 0
	typeIndex := header.TypeIndexBegin
	for offset+2 <= len(recordData) && typeIndex < header.TypeIndexEnd {
		recLen := int(binary.LittleEndian.Uint16(recordData[offset:]))
		offset += 2
		if offset+recLen > len(recordData) {
			return tpi, fmt.Errorf("type record %#x overruns stream (%d bytes at %d)", typeIndex, recLen, offset)
		}
		if recLen >= 2 {
			tpi.byIndex[typeIndex] = len(tpi.TypeRecords)
			tpi.TypeRecords = append(tpi.TypeRecords, TypeRecord{
				Index: typeIndex,
				Kind:  binary.LittleEndian.Uint16(recordData[offset:]),
				Data:  recordData[offset+2 : offset+recLen],
			})
		}
		offset += recLen
		typeIndex++
	}

	return tpi, nil
}

// GetType returns the record for a type index, or nil when absent.
func (t *TPIStream) GetType(index uint32) *TypeRecord {
	i, ok := t.byIndex[index]
	if !ok {
		return nil
	}
	return &t.TypeRecords[i]
}

// NumTypes returns the number of parsed type records.
func (t *TPIStream) NumTypes() int {
	return len(t.TypeRecords)
}

// TypeCount returns TypeIndexEnd - TypeIndexBegin.
func (t *TPIStream) TypeCount() uint32 {
	return t.Header.TypeIndexEnd - t.Header.TypeIndexBegin
}
