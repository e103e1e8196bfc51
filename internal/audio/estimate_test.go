package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// pcm encodes samples as S16LE.
func pcm(samples ...int16) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(s))
	}
	return buf
}

// repeat returns n copies of s.
func repeat(s int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestEstimate_ShortChunks(t *testing.T) {
	tests := []struct {
		name  string
		chunk []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"one byte", []byte{0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.chunk); got != 0 {
				t.Errorf("Estimate(%v) = %v, want 0", tt.chunk, got)
			}
		})
	}
}

func TestEstimate_Silence(t *testing.T) {
	for _, n := range []int{1, 2, 7, 160, 1024} {
		if got := Estimate(pcm(repeat(0, n)...)); got != 0 {
			t.Errorf("Estimate(%d zero samples) = %v, want 0", n, got)
		}
	}
}

func TestEstimate_FullScale(t *testing.T) {
	got := Estimate(pcm(repeat(math.MinInt16, 320)...))
	if got > 100 || got <= 99.9 {
		t.Fatalf("Estimate(full scale) = %v, want in (99.9, 100]", got)
	}
	if got != 100 {
		t.Errorf("Estimate(full scale) = %v, want exactly 100", got)
	}
}

func TestEstimate_KnownValues(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"half scale constant", repeat(16384, 10), 50},
		{"alternating sign", []int16{16384, -16384, 16384, -16384}, 50},
		{"single sample", []int16{-3277}, 3277.0 / MaxSampleValue * 100},
		// rms of {3, 4} is sqrt(12.5)
		{"mixed", []int16{3, 4}, math.Sqrt(12.5) / MaxSampleValue * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(pcm(tt.samples...))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Estimate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimate_IgnoresTrailingByte(t *testing.T) {
	chunks := [][]byte{
		pcm(100, -200, 300),
		pcm(repeat(math.MaxInt16, 16)...),
		pcm(0),
	}
	for _, chunk := range chunks {
		for _, extra := range []byte{0x00, 0x7f, 0xff} {
			padded := append(append([]byte{}, chunk...), extra)
			if a, b := Estimate(chunk), Estimate(padded); a != b {
				t.Errorf("Estimate changed with trailing byte %#x: %v != %v", extra, a, b)
			}
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	chunk := pcm(12, -9000, 31000, -32768, 5)
	first := Estimate(chunk)
	for range 10 {
		if got := Estimate(chunk); got != first {
			t.Fatalf("Estimate not deterministic: %v != %v", got, first)
		}
	}
}

func TestIsTruncated(t *testing.T) {
	if IsTruncated(pcm(1, 2)) {
		t.Error("IsTruncated(even) = true")
	}
	if !IsTruncated([]byte{1, 2, 3}) {
		t.Error("IsTruncated(odd) = false")
	}
}
