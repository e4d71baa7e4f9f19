//go:build !windows

package main

import (
	"os"
	"syscall"
)

var dumpSignals = []os.Signal{syscall.SIGUSR1}
