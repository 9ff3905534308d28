package typedesc_test

import (
	"math"
	"testing"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

func TestVariantRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 0x1234_5678_9abc_def0} {
		if got := typedesc.Int64Variant(v).Decode(8); got != v {
			t.Fatalf("Int64Variant(%d).Decode(8) = %d", v, got)
		}
	}
	for _, v := range []int16{0, 1, -1, math.MaxInt16, math.MinInt16} {
		if got := typedesc.Int16Variant(v).Decode(2); got != int64(v) {
			t.Fatalf("Int16Variant(%d).Decode(2) = %d", v, got)
		}
	}
	for _, v := range []uint8{0, 1, 0x7f, 0x80, 0xff} {
		if got := typedesc.Int8Variant(v).Decode(1); got != int64(v) {
			t.Fatalf("Int8Variant(%d).Decode(1) = %d", v, got)
		}
	}
	for _, v := range []int32{0, 7, -7, math.MaxInt32, math.MinInt32} {
		if got := typedesc.Int32Variant(v).Decode(4); got != int64(v) {
			t.Fatalf("Int32Variant(%d).Decode(4) = %d", v, got)
		}
	}
}

func TestKindForSize(t *testing.T) {
	cases := []struct {
		size int
		want typedesc.IntKind
	}{
		{8, typedesc.KindInt64},
		{2, typedesc.KindInt16},
		{1, typedesc.KindByte},
		{4, typedesc.KindInt32},
		{0, typedesc.KindInt32},
		{3, typedesc.KindInt32},
		{16, typedesc.KindInt32},
		{-1, typedesc.KindInt32},
	}
	for _, tc := range cases {
		if got := typedesc.KindForSize(tc.size); got != tc.want {
			t.Fatalf("KindForSize(%d) = %s, want %s", tc.size, got, tc.want)
		}
	}
}

func TestDecodeReadsLowOrderBytes(t *testing.T) {
	v := typedesc.NewVariant(typedesc.VTI8, 0x8877_6655_4433_2211)
	cases := []struct {
		size int
		want int64
	}{
		{1, 0x11},
		{2, 0x2211},
		{4, 0x4433_2211},
		{8, int64(-0x7788_99aa_bbcc_ddef)},
		{12, 0x4433_2211},
	}
	for _, tc := range cases {
		if got := v.Decode(tc.size); got != tc.want {
			t.Fatalf("Decode(%d) = %#x, want %#x", tc.size, got, tc.want)
		}
	}
}

func TestDecodeSignExtension(t *testing.T) {
	v := typedesc.NewVariant(typedesc.VTI4, 0xFFFF_FFFF)
	if got := v.Decode(4); got != -1 {
		t.Fatalf("Decode(4) = %d, want -1", got)
	}
	if got := v.Decode(2); got != -1 {
		t.Fatalf("Decode(2) = %d, want -1", got)
	}
	if got := v.Decode(1); got != 0xff {
		t.Fatalf("Decode(1) = %d, want 255", got)
	}
	if got := v.Decode(8); got != 0xFFFF_FFFF {
		t.Fatalf("Decode(8) = %d, want %d", got, int64(0xFFFF_FFFF))
	}
}

func TestFloat64Variant(t *testing.T) {
	v := typedesc.Float64Variant(2.5)
	if v.VT != typedesc.VTR8 {
		t.Fatalf("VT = %d, want %d", v.VT, typedesc.VTR8)
	}
	if got := v.Float64(); got != 2.5 {
		t.Fatalf("Float64() = %v, want 2.5", got)
	}
	if got := v.Decode(8); got != int64(math.Float64bits(2.5)) {
		t.Fatalf("Decode(8) = %#x, want raw bits", got)
	}
}
