package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/channels/kafka"
	"github.com/dukex/chatflow/pkg/eventbus"
)

const defaultPartitions = 12

// NewEventBus connects the event bus. "gochannel" only reaches subscribers
// of the same process.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		brokerList := strings.Split(brokers, ",")

		err := kafka.EnsureTopic(brokerList, defaultPartitions)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka topic: %w", err))
		}

		pub, sub, err := kafka.CreateChannel(wlogger, brokerList, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
