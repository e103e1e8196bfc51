// Package audio provides loudness estimation for raw PCM sensor audio and the
// shared cell that hands the latest reading from the sensor goroutine to the
// control loop.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// MaxSampleValue is the full-scale magnitude of a signed 16-bit sample.
	MaxSampleValue = 32768.0
	// BytesPerSample is the width of one S16LE sample.
	BytesPerSample = 2
)

// Estimate returns the RMS loudness of an S16LE mono chunk as a percentage of
// full scale. A trailing unpaired byte is ignored and a chunk without a whole
// sample reads as 0. The result is not clamped.
func Estimate(chunk []byte) float64 {
	n := len(chunk) / BytesPerSample
	if n == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < n*BytesPerSample; i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(chunk[i:])))
		sumSquares += s * s
	}

	rms := math.Sqrt(sumSquares / float64(n))
	return rms / MaxSampleValue * 100
}

// IsTruncated reports whether chunk ends in a partial sample.
func IsTruncated(chunk []byte) bool {
	return len(chunk)%BytesPerSample != 0
}
