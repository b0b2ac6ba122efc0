package cmd

import (
	"time"

	"github.com/urfave/cli/v3"
)

const defaultHTTPTimeout = 10 * time.Second

// RuntimeFlags are accepted by every binary that runs the engine.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file path or postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for distributed locks, idempotency and the inbound queue",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-url",
			Usage:   "Outbound message endpoint. Messages are only logged when empty",
			Sources: cli.EnvVars("WHATSAPP_API_URL"),
		},
		&cli.StringFlag{
			Name:    "whatsapp-token",
			Usage:   "Bearer token for the outbound message endpoint",
			Sources: cli.EnvVars("WHATSAPP_API_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "http-timeout",
			Usage:   "Timeout of outbound message and webhook calls",
			Value:   defaultHTTPTimeout,
			Sources: cli.EnvVars("HTTP_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Maximum nodes evaluated by one run of an execution",
			Value:   0,
			Sources: cli.EnvVars("MAX_STEPS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func RuntimeConfigFrom(command *cli.Command, serviceName string) RuntimeConfig {
	return RuntimeConfig{
		ServiceName:   serviceName,
		DatabaseURL:   command.String("database-url"),
		EventBus:      command.String("event-bus"),
		KafkaBrokers:  command.String("kafka-brokers"),
		RedisURL:      command.String("redis-url"),
		WhatsAppURL:   command.String("whatsapp-url"),
		WhatsAppToken: command.String("whatsapp-token"),
		HTTPTimeout:   command.Duration("http-timeout"),
		Tracing:       command.Bool("tracing"),
		MaxSteps:      int(command.Int("max-steps")),
	}
}
