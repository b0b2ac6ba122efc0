// Package main runs chatflow workers: they step executions and handle
// inbound events taken from the event bus and, optionally, a Redis queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/ingest/redisqueue"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPoolSize   = 8
	defaultPoolBuffer = 256
)

func main() {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Executions stepped in parallel by this worker",
			Value:   defaultPoolSize,
			Sources: cli.EnvVars("WORKER_CONCURRENCY"),
		},
		&cli.StringFlag{
			Name:    "inbound-queue",
			Usage:   "Redis list consumed for inbound events. Requires --redis-url",
			Value:   redisqueue.DefaultQueue,
			Sources: cli.EnvVars("INBOUND_QUEUE"),
		},
	}, cmd.RuntimeFlags()...)

	command := &cli.Command{
		Name:                  "chatflow-worker",
		Usage:                 "Run flow executions",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("chatflow-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Chatflow Worker")

			rt := cmd.NewRuntime(ctx, logger, cmd.RuntimeConfigFrom(command, "chatflow-worker"))
			defer rt.Close(ctx)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			pool := worker.NewPool(rt.Engine, logger, int(command.Int("concurrency")), defaultPoolBuffer)
			pool.Start(ctx)
			rt.Engine.SetEnqueuer(pool)

			manager := worker.NewManager(workerID, rt.Engine, rt.EventBus, logger)

			err := manager.Start(ctx)
			if err != nil {
				return err
			}

			var consumer *redisqueue.Consumer

			if rt.Redis != nil {
				consumer = redisqueue.NewConsumer(rt.Redis, command.String("inbound-queue"), func(ctx context.Context, event models.InboundEvent) error {
					_, err := rt.Engine.HandleEvent(ctx, event)

					return err
				}, logger)

				err = consumer.Start(ctx)
				if err != nil {
					return err
				}
			}

			logger.InfoContext(ctx, "Worker started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down worker...")

			if consumer != nil {
				err = consumer.Stop(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to stop inbound consumer", "error", err)
				}
			}

			cancel()

			return pool.Stop()
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
