package controlplane

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/cuemby/p2p-agent/internal/log"
)

// WatchSignals installs handlers for SIGTERM and SIGINT that invoke
// onShutdown exactly once. SIGHUP is logged and ignored (reserved for
// future config-reload support). A second SIGINT received while a
// shutdown is already underway escalates to an immediate os.Exit(1).
//
// It returns a stop function that removes the signal handlers; callers
// should defer it.
func WatchSignals(onShutdown func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	var shuttingDown atomic.Bool
	done := make(chan struct{})

	go func() {
		logger := log.WithComponent("controlplane")
		for {
			select {
			case sig := <-ch:
				switch sig {
				case syscall.SIGHUP:
					logger.Info().Msg("received SIGHUP, ignoring (reload is not supported)")
				case syscall.SIGTERM, syscall.SIGINT:
					if shuttingDown.Load() {
						if sig == syscall.SIGINT {
							logger.Warn().Msg("received second SIGINT during shutdown, exiting immediately")
							os.Exit(1)
						}
						continue
					}
					shuttingDown.Store(true)
					logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
					go onShutdown()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
