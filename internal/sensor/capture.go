package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/audio"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// captureSource reads raw PCM frames from a local capture process.
type captureSource struct {
	frames Source
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr bytes.Buffer

	waitOnce sync.Once
	waitErr  error
}

// StartCapture starts the platform capture command for device and returns
// its stdout as a Source of chunkBytes-sized frames. The process is stopped
// when ctx is done or the source is closed.
func StartCapture(ctx context.Context, device, ffmpegPath string, chunkBytes int) (Source, error) {
	cmdName, args, err := audio.BuildCaptureCommand(device, ffmpegPath)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, cmdName, args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	s := &captureSource{cmd: cmd, cancel: cancel}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("open capture output", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, util.WrapError("start capture", err)
	}

	slog.Info("started audio capture", "command", cmdName, "device", device)

	s.frames = NewReaderSource(stdout, chunkBytes)
	return s, nil
}

// CaptureDialer returns a Dialer for StartCapture.
func CaptureDialer(device, ffmpegPath string, chunkBytes int) Dialer {
	return func(ctx context.Context) (Source, error) {
		return StartCapture(ctx, device, ffmpegPath, chunkBytes)
	}
}

// Receive implements Source. When the process output ends the error carries
// the last line the process wrote to stderr.
func (s *captureSource) Receive(ctx context.Context) ([]byte, error) {
	data, err := s.frames.Receive(ctx)
	if err == nil || ctx.Err() != nil {
		return data, err
	}
	if !errors.Is(err, io.EOF) {
		return nil, err
	}

	waitErr := s.wait()
	if msg := util.ExtractLastError(s.stderr.String()); msg != "" {
		return nil, fmt.Errorf("capture exited: %s", msg)
	}
	if waitErr != nil {
		return nil, util.WrapError("run capture", waitErr)
	}
	return nil, io.EOF
}

// wait reaps the capture process once.
func (s *captureSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close stops the capture process and waits for it to exit.
func (s *captureSource) Close() error {
	s.cancel()
	err := s.wait()
	_ = s.frames.Close() //nolint:errcheck // Pipe is already closed by Wait
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Interrupted captures exit non-zero.
		return nil
	}
	return err
}
