package widths

import "testing"

func TestPickTreeWidth(t *testing.T) {
	tests := []struct {
		numTrees int
		want     Kind
	}{
		{1, W8},
		{255, W8},
		{256, W8},
		{257, W16},
		{70000, W32},
	}
	for _, tt := range tests {
		if got := PickTreeWidth(tt.numTrees); got != tt.want {
			t.Errorf("PickTreeWidth(%d) = %v, want %v", tt.numTrees, got, tt.want)
		}
	}
}

func TestPickNodeWidthFromMaxDepth(t *testing.T) {
	// maxDepth=5 -> 2^5=32 node ids max, fits in a byte.
	if got := PickNodeWidth(5); got != W8 {
		t.Errorf("PickNodeWidth(5) = %v, want W8", got)
	}
	// maxDepth=9 -> 2^9=512, needs 16 bits.
	if got := PickNodeWidth(9); got != W16 {
		t.Errorf("PickNodeWidth(9) = %v, want W16", got)
	}
	// maxDepth=30 (spec.md max) needs 32 bits.
	if got := PickNodeWidth(30); got != W32 {
		t.Errorf("PickNodeWidth(30) = %v, want W32", got)
	}
}

func TestNewTreeNodeCodecAllNineCombinations(t *testing.T) {
	kinds := []Kind{W8, W16, W32}
	for _, tk := range kinds {
		for _, nk := range kinds {
			codec := NewTreeNodeCodec(tk, nk)
			if codec.Tree != tk || codec.Node != nk {
				t.Errorf("NewTreeNodeCodec(%v,%v) = %+v, want tree=%v node=%v", tk, nk, codec, tk, nk)
			}
		}
	}
}

func TestPutGetUintRoundTrip(t *testing.T) {
	for _, k := range []Kind{W8, W16, W32} {
		buf := make([]byte, 4)
		var v uint32
		switch k {
		case W8:
			v = 200
		case W16:
			v = 40000
		default:
			v = 1 << 20
		}
		n := PutUint(buf, k, v)
		got, m := GetUint(buf, k)
		if n != m {
			t.Fatalf("width %v: wrote %d bytes, read %d", k, n, m)
		}
		if got != v {
			t.Errorf("width %v: round-trip %d -> %d", k, v, got)
		}
	}
}
