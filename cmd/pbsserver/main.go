// Command pbsserver is the PBS process entrypoint: it loads configuration,
// builds the instance orchestrator, and drives Init/Run/Stop off the
// process's own lifetime and incoming termination signals.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/privacysandbox/pbs/internal/instance"
	"github.com/privacysandbox/pbs/pkg/config"
)

// Exit codes, per spec section 6: 0 clean shutdown, 1 init failure, 2 run
// failure.
const (
	exitClean       = 0
	exitInitFailure = 1
	exitRunFailure  = 2
)

func main() {
	log := logrus.StandardLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(exitInitFailure)
	}

	orch := instance.New(cfg, instance.Options{Log: log})
	if err := orch.Init(); err != nil {
		log.WithError(err).Error("init orchestrator")
		os.Exit(exitInitFailure)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal")
		ctx, cancel := instance.DefaultShutdownContext()
		defer cancel()
		if err := orch.Stop(ctx); err != nil {
			log.WithError(err).Error("stop orchestrator")
		}
		os.Exit(exitClean)
	}()

	if err := orch.Run(); err != nil {
		log.WithError(err).Error("run orchestrator")
		os.Exit(exitRunFailure)
	}

	select {}
}
