// Package gochannel provides the in-process event bus transport used by the
// single-binary deployment and the tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const defaultBuffer = 1000

type Option func(*gochannel.Config)

// WithBuffer sets the per-subscriber output buffer.
func WithBuffer(size int64) Option {
	return func(c *gochannel.Config) { c.OutputChannelBuffer = size }
}

// WithAckedPublish makes Publish return only after every subscriber acked,
// so a test can assert right after publishing a step request.
func WithAckedPublish() Option {
	return func(c *gochannel.Config) { c.BlockPublishUntilSubscriberAck = true }
}

// CreateChannel returns one GoChannel as both publisher and subscriber.
func CreateChannel(logger watermill.LoggerAdapter, opts ...Option) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	cfg := gochannel.Config{OutputChannelBuffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	pubSub := gochannel.NewGoChannel(cfg, logger)

	return pubSub, pubSub, nil
}
