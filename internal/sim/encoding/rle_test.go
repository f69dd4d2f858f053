package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 10, 10, 0, 0, 0, 250)
	for i := 0; i < 50; i++ {
		in = append(in, 0)
	}
	in = append(in, 50, 253, 253, 20)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestEncodeCells(t *testing.T) {
	cells := make([]float64, 40*30)
	cells[0], cells[17], cells[1199] = 10, 250, 150

	s, ok := EncodeCells(cells)
	if !ok {
		t.Fatalf("integral cells should encode")
	}
	if len(s) >= 64 {
		t.Fatalf("sparse frame should compress, got %d bytes", len(s))
	}
	got, err := DecodeCells(s, len(cells))
	if err != nil {
		t.Fatalf("DecodeCells: %v", err)
	}
	for i := range cells {
		if got[i] != cells[i] {
			t.Fatalf("cell %d: got %v want %v", i, got[i], cells[i])
		}
	}
	if _, err := DecodeCells(s, len(cells)+1); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestEncodeCellsRejectsFractional(t *testing.T) {
	for _, v := range []float64{0.5, -1, MaxCode + 1} {
		if _, ok := EncodeCells([]float64{0, v}); ok {
			t.Fatalf("value %v should not encode", v)
		}
	}
}

func TestDecodeRLEBadInput(t *testing.T) {
	if _, err := DecodeRLE("!!!"); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err := DecodeRLE("gA=="); err == nil {
		t.Fatalf("expected truncated varint error")
	}
}
