//go:build !linux

package audio

import "runtime"

// platformConfig captures through FFmpeg using the native input device API.
func platformConfig() CaptureConfig {
	var inputFormat, defaultDevice string
	switch runtime.GOOS {
	case "darwin":
		inputFormat, defaultDevice = "avfoundation", ":0"
	case "windows":
		// DirectShow has no safe default; the device must be configured.
		inputFormat = "dshow"
	default:
		inputFormat, defaultDevice = "oss", "/dev/dsp"
	}

	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: defaultDevice,
		UsesFFmpeg:    true,
		BuildArgs: func(device string) []string {
			args := []string{"-hide_banner", "-loglevel", "warning", "-nostdin", "-f", inputFormat, "-i", device}
			return append(args, ffmpegFormatArgs()...)
		},
	}
}
