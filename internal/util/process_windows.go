//go:build windows

package util

import "os"

var shutdownSignals = []os.Signal{os.Interrupt}

// ShutdownSignals returns the signals that stop the service.
func ShutdownSignals() []os.Signal {
	return shutdownSignals
}

// GracefulSignal stops a capture process. Windows cannot deliver an interrupt
// to a child process, so it is killed.
func GracefulSignal(p *os.Process) error {
	return p.Kill()
}
