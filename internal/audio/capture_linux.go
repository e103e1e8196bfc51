//go:build linux

package audio

import "strconv"

// platformConfig captures through ALSA's arecord, which ships with every
// Raspberry Pi image and writes raw S16LE without FFmpeg.
func platformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs: func(device string) []string {
			return []string{
				"-D", device,
				"-t", "raw",
				"-f", "S16_LE",
				"-c", strconv.Itoa(CaptureChannels),
				"-r", strconv.Itoa(CaptureSampleRate),
				"-q",
				"-",
			}
		},
	}
}
