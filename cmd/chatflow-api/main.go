package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.BoolFlag{
			Name:    "async",
			Usage:   "Queue inbound events and steps for chatflow-worker instead of running them in the request",
			Sources: cli.EnvVars("ASYNC"),
		},
		&cli.BoolFlag{
			Name:    "scheduler",
			Usage:   "Run the timer scheduler inside the API process",
			Value:   true,
			Sources: cli.EnvVars("EMBEDDED_SCHEDULER"),
		},
	}, cmd.RuntimeFlags()...)

	command := &cli.Command{
		Name:                  "chatflow-api",
		Usage:                 "Manage flows and accept WhatsApp events",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("chatflow-api")
			logger.InfoContext(ctx, "Initializing Chatflow API")

			rt := cmd.NewRuntime(ctx, logger, cmd.RuntimeConfigFrom(command, "chatflow-api"))
			defer rt.Close(ctx)

			var inbound eventbus.EventPublisher

			if command.Bool("async") {
				inbound = rt.EventBus
				rt.Engine.SetEnqueuer(worker.NewBusEnqueuer(rt.EventBus, "api-"+uuid.NewString()[:8]))
			}

			if command.Bool("scheduler") {
				err := rt.Scheduler.Start(ctx)
				if err != nil {
					return err
				}

				defer rt.Scheduler.Stop(ctx)
			}

			api := NewAPI(logger, rt.Persistence, rt.Registry, rt.Engine, inbound)
			app := api.App()

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

				<-sigChan
				logger.InfoContext(ctx, "Shutting down API...")

				err := app.Shutdown()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to shut down API", "error", err)
				}
			}()

			err := app.Listen(":" + strconv.Itoa(int(command.Int("port"))))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
