//go:build windows

package main

import "os"

var dumpSignals []os.Signal
