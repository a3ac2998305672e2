package main

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func waitForShutdown(sig chan os.Signal) {
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
