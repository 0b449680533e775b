//go:build !windows

package subprocess

import (
	"errors"
	"os"
	"syscall"
)

// terminateProcess asks the child to exit with SIGTERM. Returns nil if the
// child has already exited.
func terminateProcess(proc *os.Process) error {
	return signalProcess(proc, syscall.SIGTERM)
}

// killProcess kills the child outright.
func killProcess(proc *os.Process) error {
	return signalProcess(proc, os.Kill)
}

func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
