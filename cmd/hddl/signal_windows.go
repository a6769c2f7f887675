//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals registers Ctrl+C, the only stop signal Windows delivers.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
