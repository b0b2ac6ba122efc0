// Package main runs the timer scheduler. It claims due resumes and hands
// the woken executions to the workers through the event bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/worker"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "How often due timers are polled",
			Value:   0,
			Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "inline",
			Usage:   "Step woken executions in this process instead of on the workers",
			Sources: cli.EnvVars("SCHEDULER_INLINE"),
		},
	}, cmd.RuntimeFlags()...)

	command := &cli.Command{
		Name:                  "chatflow-scheduler",
		Usage:                 "Resume executions whose delay or reply timeout is due",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("chatflow-scheduler")
			logger.InfoContext(ctx, "Initializing Chatflow Scheduler")

			cfg := cmd.RuntimeConfigFrom(command, "chatflow-scheduler")
			cfg.SchedulerInterval = command.Duration("interval")

			rt := cmd.NewRuntime(ctx, logger, cfg)
			defer rt.Close(ctx)

			if !command.Bool("inline") {
				rt.Engine.SetEnqueuer(worker.NewBusEnqueuer(rt.EventBus, "scheduler"))
			}

			err := rt.Scheduler.Start(ctx)
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler...")

			rt.Scheduler.Stop(ctx)

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
