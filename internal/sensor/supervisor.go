package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Kind is the source kind reported in status ("websocket", "capture", "stdin").
	Kind      string
	Dial      Dialer
	Publisher Publisher
	HeaderLen int

	// Once stops the supervisor after the first source ends instead of
	// reconnecting. Used for streams that cannot be reopened, such as stdin.
	Once bool

	// OnChunk is forwarded to the Adapter.
	OnChunk func(reading float64, malformed bool)
	// OnReconnect is called before every reconnect attempt.
	OnReconnect func()

	// Zero values select the defaults from the types package.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	StableAfter  time.Duration
}

// Supervisor keeps a sensor source connected, reconnecting with exponential
// backoff when it drops.
type Supervisor struct {
	cfg     SupervisorConfig
	backoff *util.Backoff
	chunks  atomic.Uint64

	mu          sync.RWMutex
	state       types.SensorState
	connectedAt time.Time
	lastError   string
}

// NewSupervisor creates a Supervisor in the stopped state.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = types.InitialRetryDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = types.MaxRetryDelay
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = types.SuccessThreshold
	}
	return &Supervisor{
		cfg:     cfg,
		backoff: util.NewBackoff(cfg.InitialDelay, cfg.MaxDelay),
		state:   types.SensorStopped,
	}
}

// Run connects and reconnects until ctx is done. It always returns nil;
// connection failures are reported through Status.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(types.SensorStopped)

	for {
		s.setState(types.SensorConnecting)

		start := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(start) >= s.cfg.StableAfter {
			s.backoff.Reset()
		}
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()

		if s.cfg.Once {
			slog.Warn("sensor stream ended", "source", s.cfg.Kind, "error", err)
			return nil
		}

		delay := s.backoff.Next()
		slog.Warn("sensor disconnected, waiting before reconnect",
			"source", s.cfg.Kind, "error", err, "delay", delay, "attempt", s.backoff.Attempts())
		s.setState(types.SensorWaiting)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}
	}
}

// runOnce dials a source and runs an Adapter on it until it ends.
func (s *Supervisor) runOnce(ctx context.Context) error {
	src, err := s.cfg.Dial(ctx)
	if err != nil {
		return err
	}
	defer util.SafeCloseFunc(src, "sensor source")()

	// Closing unblocks sources whose Receive cannot observe ctx.
	stop := context.AfterFunc(ctx, func() {
		_ = src.Close() //nolint:errcheck // Closed again by the deferred close
	})
	defer stop()

	s.mu.Lock()
	s.state = types.SensorConnected
	s.connectedAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()
	slog.Info("sensor connected", "source", s.cfg.Kind)

	adapter := &Adapter{
		Source:    src,
		Publisher: s.cfg.Publisher,
		HeaderLen: s.cfg.HeaderLen,
		OnChunk:   s.onChunk,
	}
	return adapter.Run(ctx)
}

// onChunk counts received chunks and forwards to the configured hook.
func (s *Supervisor) onChunk(reading float64, malformed bool) {
	s.chunks.Add(1)
	if s.cfg.OnChunk != nil {
		s.cfg.OnChunk(reading, malformed)
	}
}

func (s *Supervisor) setState(state types.SensorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Status returns the current connection status.
func (s *Supervisor) Status() types.SensorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := types.SensorStatus{
		State:      s.state,
		Source:     s.cfg.Kind,
		RetryCount: s.backoff.Attempts(),
		Chunks:     s.chunks.Load(),
		LastError:  s.lastError,
	}
	if s.state == types.SensorConnected {
		status.Uptime = util.FormatDuration(time.Since(s.connectedAt))
	}
	return status
}
