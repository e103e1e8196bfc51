// Package sensor connects an audio transport to the amplitude channel.
package sensor

import (
	"context"
	"errors"
	"io"
)

// ErrDisconnected is returned when a source stops delivering chunks.
var ErrDisconnected = errors.New("sensor disconnected")

// Source delivers raw audio chunks, one notification payload per call.
type Source interface {
	// Receive blocks until the next chunk arrives, the source ends or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	io.Closer
}

// Dialer opens a new Source.
type Dialer func(ctx context.Context) (Source, error)

// Publisher receives every loudness reading the adapter computes.
type Publisher interface {
	Publish(reading float64)
}
