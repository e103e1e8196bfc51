package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/audio"
)

// Adapter strips the transport header from each chunk, estimates its
// loudness and publishes the reading.
type Adapter struct {
	Source    Source
	Publisher Publisher

	// HeaderLen is the number of leading non-audio bytes in every chunk.
	HeaderLen int

	// OnChunk, when set, is called after every publish. Malformed reports a
	// chunk shorter than the header or one with a trailing odd byte.
	OnChunk func(reading float64, malformed bool)
}

// Run receives chunks until ctx is done or the source ends. It returns nil on
// cancellation and an error wrapping ErrDisconnected otherwise. The channel
// keeps its last published value after Run returns.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		chunk, err := a.Source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrDisconnected
			}
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		a.handle(chunk)
	}
}

// handle publishes the reading for a single chunk.
func (a *Adapter) handle(chunk []byte) {
	var payload []byte
	short := len(chunk) < a.HeaderLen
	if !short {
		payload = chunk[a.HeaderLen:]
	}

	reading := audio.Estimate(payload)
	a.Publisher.Publish(reading)

	if a.OnChunk != nil {
		a.OnChunk(reading, short || audio.IsTruncated(payload))
	}
}
