//go:build !windows

package util

import (
	"os"
	"syscall"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// ShutdownSignals returns the signals that stop the service.
func ShutdownSignals() []os.Signal {
	return shutdownSignals
}

// GracefulSignal asks a capture process to stop. Both arecord and FFmpeg
// flush and exit on SIGINT.
func GracefulSignal(p *os.Process) error {
	return p.Signal(os.Interrupt)
}
