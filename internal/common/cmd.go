// Package common holds process setup shared by the beaver commands.
package common

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

// default ratio from the memlimit pkg
const memLimitRatio = 0.9

// SetupSignalHandler returns a context cancelled on the first SIGINT or
// SIGTERM. A second signal exits the process.
func SetupSignalHandler(ctx context.Context, logger zerolog.Logger) context.Context {
	ret, cancel := context.WithCancel(ctx)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
		case <-ret.Done():
			signal.Stop(c)
			return
		}
		logger.Info().Msg("Signal received to stop")
		cancel()

		<-c
		logger.Warn().Msg("Re-receiving stop signal, exit directly")
		os.Exit(1)
	}()

	return ret
}

// SetMaxProcs matches GOMAXPROCS to the container CPU quota.
func SetMaxProcs(logger zerolog.Logger) error {
	_, err := maxprocs.Set(maxprocs.Logger(func(msg string, args ...interface{}) {
		logger.Debug().Msg(fmt.Sprintf(msg, args...))
	}))
	if err != nil {
		return fmt.Errorf("failed to set max procs: %w", err)
	}
	return nil
}

// SetMemLimit sets GOMEMLIMIT from the cgroup memory limit.
func SetMemLimit(logger zerolog.Logger) error {
	limit, err := memlimit.SetGoMemLimit(memLimitRatio)
	if err != nil {
		return fmt.Errorf("failed to set go mem limit: %w", err)
	}
	logger.Debug().Float64("ratio", memLimitRatio).Str("limit", humanize.IBytes(uint64(limit))).Msg("Go memlimit configured")
	return nil
}
