package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// MaxCode is the largest cell value EncodeCells can carry.
const MaxCode = 0xFFFF

// EncodeRLE encodes a sequence of cell codes into base64(varint pairs).
// The pairs are (code, run_len) repeated.
func EncodeRLE(codes []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(codes) {
		c := codes[i]
		run := 1
		for j := i + 1; j < len(codes) && codes[j] == c && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(c))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRLE(b64 string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		c, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if c > MaxCode {
			return nil, fmt.Errorf("cell code too large: %d", c)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint16(c))
		}
	}
	return out, nil
}

// EncodeCells run-length encodes a flattened frame. It reports false when a cell is not an
// integer in [0, MaxCode], which happens only with a custom fractional encoding.
func EncodeCells(cells []float64) (string, bool) {
	codes := make([]uint16, len(cells))
	for i, v := range cells {
		if v < 0 || v > MaxCode || v != math.Trunc(v) {
			return "", false
		}
		codes[i] = uint16(v)
	}
	return EncodeRLE(codes), true
}

// DecodeCells reverses EncodeCells and checks the frame has want cells.
func DecodeCells(b64 string, want int) ([]float64, error) {
	codes, err := DecodeRLE(b64)
	if err != nil {
		return nil, err
	}
	if len(codes) != want {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(codes), want)
	}
	out := make([]float64, len(codes))
	for i, c := range codes {
		out[i] = float64(c)
	}
	return out, nil
}
