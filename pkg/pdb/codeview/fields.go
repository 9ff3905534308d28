package codeview

import (
	"errors"
	"fmt"

	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// Field is one entry of an LF_FIELDLIST record.
type Field struct {
	Leaf      uint16
	Attrs     uint16
	TypeIndex uint32 // member, base, nested or method type; method list for LF_METHOD
	Offset    uint64 // LF_MEMBER and LF_BCLASS
	Value     uint64 // LF_ENUMERATE, sign-extended
	Count     uint16 // LF_METHOD overloads
	Name      string
}

var (
	errTruncated   = errors.New("truncated")
	errUnknownLeaf = errors.New("unknown leaf")
)

// Method properties stored in bits 2-4 of a method's attributes.
const (
	MethodIntro     = 4
	MethodPureIntro = 6
)

// ParseFieldList decodes the body of one LF_FIELDLIST record. A trailing
// LF_INDEX is not returned as a field; its target is returned as next.
func ParseFieldList(data []byte) (fields []Field, next uint32, err error) {
	off := 0
	for off+2 <= len(data) {
		if pad := streams.SkipPadding(data[off:]); pad > 0 {
			off += pad
			continue
		}

		f := Field{Leaf: le16(data[off:])}
		body := data[off+2:]
		n, err := f.decode(body)
		if err != nil {
			return fields, 0, fmt.Errorf("field %d (%s) at %d: %w", len(fields), streams.LeafKindName(f.Leaf), off, err)
		}
		off += 2 + n

		if f.Leaf == streams.LF_INDEX {
			next = f.TypeIndex
			continue
		}
		fields = append(fields, f)
	}
	return fields, next, nil
}

// decode fills f from body and returns the number of bytes consumed.
func (f *Field) decode(body []byte) (int, error) {
	pos := 0
	u16 := func() (uint16, bool) {
		if pos+2 > len(body) {
			return 0, false
		}
		v := le16(body[pos:])
		pos += 2
		return v, true
	}
	u32 := func() (uint32, bool) {
		if pos+4 > len(body) {
			return 0, false
		}
		v := le32(body[pos:])
		pos += 4
		return v, true
	}
	numeric := func() (uint64, bool) {
		v, n := streams.ParseNumeric(body[pos:])
		pos += n
		return v, n > 0
	}
	name := func() {
		var n int
		f.Name, n = streams.ParseString(body[pos:])
		pos += n
	}
	var ok bool
	switch f.Leaf {
	case streams.LF_MEMBER, streams.LF_BCLASS:
		if f.Attrs, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		if f.Offset, ok = numeric(); !ok {
			return 0, errTruncated
		}
		if f.Leaf == streams.LF_MEMBER {
			name()
		}
	case streams.LF_VBCLASS, streams.LF_IVBCLASS:
		if f.Attrs, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		if _, ok = u32(); !ok { // virtual base pointer type
			return 0, errTruncated
		}
		if f.Offset, ok = numeric(); !ok {
			return 0, errTruncated
		}
		if _, ok = numeric(); !ok {
			return 0, errTruncated
		}
	case streams.LF_ENUMERATE:
		if f.Attrs, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.Value, ok = numeric(); !ok {
			return 0, errTruncated
		}
		name()
	case streams.LF_STMEMBER:
		if f.Attrs, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		name()
	case streams.LF_METHOD:
		if f.Count, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		name()
	case streams.LF_ONEMETHOD:
		if f.Attrs, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		if mprop := (f.Attrs >> 2) & 0x7; mprop == MethodIntro || mprop == MethodPureIntro {
			if _, ok = u32(); !ok { // vtable offset
				return 0, errTruncated
			}
		}
		name()
	case streams.LF_NESTTYPE:
		if _, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
		name()
	case streams.LF_VFUNCTAB, streams.LF_INDEX:
		if _, ok = u16(); !ok {
			return 0, errTruncated
		}
		if f.TypeIndex, ok = u32(); !ok {
			return 0, errTruncated
		}
	default:
		return 0, errUnknownLeaf
	}
	return pos, nil
}

// Access returns the member access bits (1 private, 2 protected, 3 public).
func (f Field) Access() uint16 { return f.Attrs & 0x3 }
