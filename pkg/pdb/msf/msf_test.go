package msf_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jtang613/pdbstruct/internal/pdbtest"
	"github.com/jtang613/pdbstruct/pkg/pdb/msf"
)

func TestStreamsRoundTrip(t *testing.T) {
	big := bytes.Repeat([]byte("0123456789abcdef"), 100) // spans four blocks
	image := pdbtest.WriteMSF([][]byte{{}, []byte("hello"), nil, big})

	m, err := msf.NewMSF(bytes.NewReader(image))
	if err != nil {
		t.Fatalf("NewMSF: %v", err)
	}
	if m.NumStreams() != 4 {
		t.Fatalf("NumStreams() = %d, want 4", m.NumStreams())
	}
	if m.BlockSize() != pdbtest.BlockSize {
		t.Fatalf("BlockSize() = %d, want %d", m.BlockSize(), pdbtest.BlockSize)
	}

	cases := []struct {
		index int
		want  []byte
	}{
		{0, []byte{}},
		{1, []byte("hello")},
		{2, []byte{}},
		{3, big},
	}
	for _, tc := range cases {
		got, err := m.ReadStream(tc.index)
		if err != nil {
			t.Fatalf("ReadStream(%d): %v", tc.index, err)
		}
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("ReadStream(%d) = %d bytes, want %d", tc.index, len(got), len(tc.want))
		}
	}

	if _, err := m.Stream(4); err == nil {
		t.Fatal("Stream(4) succeeded on a 4-stream file")
	}
}

func TestStreamReadAtCrossesBlocks(t *testing.T) {
	payload := make([]byte, 3*pdbtest.BlockSize+17)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	m, err := msf.NewMSF(bytes.NewReader(pdbtest.WriteMSF([][]byte{payload})))
	if err != nil {
		t.Fatalf("NewMSF: %v", err)
	}
	s, _ := m.Stream(0)

	buf := make([]byte, 600)
	off := int64(pdbtest.BlockSize - 100)
	n, err := s.ReadAt(buf, off)
	if err != nil || n != len(buf) {
		t.Fatalf("ReadAt = %d, %v, want %d, nil", n, err, len(buf))
	}
	if !bytes.Equal(buf, payload[off:off+600]) {
		t.Fatal("ReadAt across a block boundary returned wrong bytes")
	}

	tail := make([]byte, 50)
	n, err = s.ReadAt(tail, int64(len(payload)-20))
	if n != 20 || err != io.EOF {
		t.Fatalf("short ReadAt = %d, %v, want 20, EOF", n, err)
	}
	if _, err := s.ReadAt(tail, int64(len(payload))); err != io.EOF {
		t.Fatalf("ReadAt at end = %v, want EOF", err)
	}
}

func TestNewMSFRejectsBadMagic(t *testing.T) {
	image := pdbtest.WriteMSF([][]byte{{}})
	image[0] = 'X'
	if _, err := msf.NewMSF(bytes.NewReader(image)); !errors.Is(err, msf.ErrInvalidMagic) {
		t.Fatalf("NewMSF = %v, want ErrInvalidMagic", err)
	}
}

func TestNewMSFRejectsBadBlockSize(t *testing.T) {
	image := pdbtest.WriteMSF([][]byte{{}})
	image[32] = 0x11
	if _, err := msf.NewMSF(bytes.NewReader(image)); !errors.Is(err, msf.ErrInvalidBlockSize) {
		t.Fatalf("NewMSF = %v, want ErrInvalidBlockSize", err)
	}
}

func TestNewMSFTruncated(t *testing.T) {
	image := pdbtest.WriteMSF([][]byte{[]byte("data")})
	if _, err := msf.NewMSF(bytes.NewReader(image[:40])); err == nil {
		t.Fatal("NewMSF accepted a truncated superblock")
	}
}
