package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tomd/internal/errs"
)

// Exit codes by failure kind.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInput       = 2
	exitCredentials = 3
	exitTimeout     = 4
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Str("stage", string(errs.StageOf(err))).Msg("run failed")
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errs.ErrTimeout):
		return exitTimeout
	case errors.Is(err, errs.ErrMissingCredentials):
		return exitCredentials
	case errors.Is(err, errs.ErrSourceNotFound), errors.Is(err, errs.ErrUnsupportedFormat),
		errors.Is(err, errs.ErrRuleFileNotFound), errors.Is(err, errs.ErrInvalidRuleFile),
		errors.Is(err, errUsage):
		return exitInput
	}
	return exitFailure
}
