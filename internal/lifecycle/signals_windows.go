//go:build windows

package lifecycle

import "os"

// TerminationSignals lists the signals that stop the serve loop.
// Windows only delivers the console interrupt.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
