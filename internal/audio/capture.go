package audio

import (
	"errors"
	"strconv"
)

// Capture format for local sensor input. The estimator only needs mono S16LE.
const (
	// CaptureSampleRate is the capture sample rate in Hz.
	CaptureSampleRate = 16000
	// CaptureChannels is the number of captured channels.
	CaptureChannels = 1
)

// ErrNoCaptureDevice is returned when no capture device is configured and the
// platform has no usable default.
var ErrNoCaptureDevice = errors.New("no capture device configured")

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for capturing from device.
	BuildArgs func(device string) []string
}

// BuildCaptureCommand returns the command and arguments that write raw mono
// S16LE audio from device to stdout. The ffmpegPath parameter overrides the
// command on platforms that capture through FFmpeg.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	cfg := platformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		return "", nil, ErrNoCaptureDevice
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device), nil
}

// ffmpegFormatArgs are the output arguments shared by all FFmpeg capture backends.
func ffmpegFormatArgs() []string {
	return []string{
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(CaptureChannels),
		"-ar", strconv.Itoa(CaptureSampleRate),
		"pipe:1",
	}
}
