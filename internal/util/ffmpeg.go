package util

import "os/exec"

// ResolveFFmpegPath returns the path to the FFmpeg binary used for local capture.
// If customPath is set, it must resolve to an executable.
// Otherwise "ffmpeg" is looked up in PATH.
// Returns an empty string if FFmpeg is not found.
func ResolveFFmpegPath(customPath string) string {
	name := "ffmpeg"
	if customPath != "" {
		name = customPath
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
