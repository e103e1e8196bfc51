package sensor

import (
	"context"
	"errors"
	"io"
	"sync"
)

// frame is one read result handed from the pump goroutine to Receive.
type frame struct {
	data []byte
	err  error
}

// readerSource splits a byte stream into fixed-size frames.
type readerSource struct {
	r          io.Reader
	chunkBytes int

	frames    chan frame
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewReaderSource returns a Source that delivers chunkBytes-sized frames read
// from r. A final short frame is delivered before io.EOF. If r is an
// io.Closer it is closed by Close.
func NewReaderSource(r io.Reader, chunkBytes int) Source {
	return &readerSource{
		r:          r,
		chunkBytes: max(chunkBytes, 1),
		frames:     make(chan frame),
		done:       make(chan struct{}),
	}
}

// Receive implements Source. Reads happen on a separate goroutine so a
// blocked reader does not hold up cancellation.
func (s *readerSource) Receive(ctx context.Context) ([]byte, error) {
	s.startOnce.Do(func() { go s.pump() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f.data, f.err
	}
}

// pump reads frames until the reader fails or the source is closed.
func (s *readerSource) pump() {
	defer close(s.frames)
	for {
		buf := make([]byte, s.chunkBytes)
		n, err := io.ReadFull(s.r, buf)
		if err == nil || (n > 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
			if !s.send(frame{data: buf[:n]}) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			s.send(frame{err: err})
			return
		}
	}
}

// send hands f to Receive. It reports false once the source is closed.
func (s *readerSource) send(f frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

// Close implements io.Closer.
func (s *readerSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
