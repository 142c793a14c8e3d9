// Command plannova-jobs runs one scheduled sweep once and exits. It is meant
// for external schedulers and for manual reruns.
//
//	plannova-jobs --job=ten-day [--force]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/khushigoyal02/EMS-back/internal/app"
	"github.com/khushigoyal02/EMS-back/internal/config"
	"github.com/khushigoyal02/EMS-back/internal/logging"
	"github.com/khushigoyal02/EMS-back/internal/scheduler"
)

func main() {
	var (
		job   string
		force bool
	)
	flags := pflag.NewFlagSet("plannova-jobs", pflag.ExitOnError)
	flags.StringVar(&job, "job", "", "job to run: "+strings.Join(scheduler.Jobs, ", "))
	flags.BoolVar(&force, "force", false, "run even if the job already ran today")
	_ = flags.Parse(os.Args[1:])

	if job == "" {
		fmt.Fprintf(os.Stderr, "--job is required (%s)\n", strings.Join(scheduler.Jobs, ", "))
		os.Exit(2)
	}

	if err := run(job, force); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRan) {
			fmt.Fprintln(os.Stderr, "job already ran today; use --force to run it again")
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(job string, force bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New("plannova-jobs", cfg.LogLevel)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.Scheduler.Run(ctx, job, force)
	if errors.Is(err, scheduler.ErrAlreadyRan) {
		return err
	}
	if err != nil {
		log.Error().Err(err).Str("job", job).Msg("job failed")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)
	return err
}
