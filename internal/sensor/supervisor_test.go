package sensor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

func TestSupervisorReconnects(t *testing.T) {
	var dials atomic.Int32
	var reconnects atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &recorder{}
	s := NewSupervisor(SupervisorConfig{
		Kind:      "websocket",
		HeaderLen: 1,
		Publisher: pub,
		Dial: func(context.Context) (Source, error) {
			if dials.Add(1) >= 3 {
				cancel()
			}
			return &fakeSource{chunks: [][]byte{pcm([]byte{0}, 32767)}, err: io.EOF}, nil
		},
		OnReconnect:  func() { reconnects.Add(1) },
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if dials.Load() < 3 {
		t.Errorf("dials = %d, want at least 3", dials.Load())
	}
	if reconnects.Load() < 2 {
		t.Errorf("reconnects = %d, want at least 2", reconnects.Load())
	}

	status := s.Status()
	if status.State != types.SensorStopped {
		t.Errorf("State = %q, want stopped", status.State)
	}
	if status.Chunks == 0 || status.Chunks != uint64(len(pub.all())) {
		t.Errorf("Chunks = %d, published %d", status.Chunks, len(pub.all()))
	}
}

func TestSupervisorRecordsDialError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dials atomic.Int32
	s := NewSupervisor(SupervisorConfig{
		Kind:      "capture",
		Publisher: &recorder{},
		Dial: func(context.Context) (Source, error) {
			if dials.Add(1) == 2 {
				cancel()
			}
			return nil, errors.New("no such device")
		},
		InitialDelay: time.Millisecond,
	})

	_ = s.Run(ctx)

	status := s.Status()
	if status.LastError != "no such device" {
		t.Errorf("LastError = %q", status.LastError)
	}
	if status.RetryCount < 1 {
		t.Errorf("RetryCount = %d, want at least 1", status.RetryCount)
	}
}

func TestSupervisorOnce(t *testing.T) {
	var dials atomic.Int32
	s := NewSupervisor(SupervisorConfig{
		Kind:      "stdin",
		Publisher: &recorder{},
		Once:      true,
		Dial: func(context.Context) (Source, error) {
			dials.Add(1)
			return &fakeSource{err: io.EOF}, nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() kept reconnecting in once mode")
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}
}

func TestSupervisorConnectedStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	s := NewSupervisor(SupervisorConfig{
		Kind:      "websocket",
		Publisher: &recorder{},
		Dial:      func(context.Context) (Source, error) { return src, nil },
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Status().State != types.SensorConnected {
		if time.Now().After(deadline) {
			t.Fatal("supervisor never reported connected")
		}
		time.Sleep(time.Millisecond)
	}
	if s.Status().Uptime == "" {
		t.Error("Uptime empty while connected")
	}

	cancel()
	<-done
	if src.closed.Load() == 0 {
		t.Error("source not closed after cancellation")
	}
}
