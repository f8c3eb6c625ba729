//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// TerminationSignals lists the signals that stop the serve loop.
// SIGHUP counts as termination so an http/https server running in a
// terminal drains when the terminal goes away; a process started with
// SIGHUP ignored (nohup) keeps ignoring it.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
