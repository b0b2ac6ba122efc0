package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/dispatcher"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/scheduler"
	"github.com/dukex/chatflow/pkg/transport"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeConfig carries the flags shared by every chatflow binary.
type RuntimeConfig struct {
	ServiceName   string
	DatabaseURL   string
	EventBus      string
	KafkaBrokers  string
	RedisURL      string
	WhatsAppURL   string
	WhatsAppToken string
	HTTPTimeout   time.Duration
	Tracing       bool
	MaxSteps      int
	// SchedulerInterval is how often due timers are polled.
	SchedulerInterval time.Duration
}

// Runtime is the engine with every collaborator it needs.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Registry    *registry.Registry
	EventBus    eventbus.EventBus
	Redis       redis.UniversalClient
	Scheduler   *scheduler.Scheduler
	Dispatcher  *dispatcher.Dispatcher
	Engine      *engine.Engine
	Tracer      trace.Tracer

	shutdownTracer func(context.Context) error
}

func NewRuntime(ctx context.Context, logger *slog.Logger, cfg RuntimeConfig) *Runtime {
	r := &Runtime{Logger: logger, Tracer: otelhelper.Noop()}

	if cfg.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)
		} else {
			r.Tracer, r.shutdownTracer = tracer, shutdown
		}
	}

	r.Registry = NewRegistry(logger)
	r.Persistence = NewPersistence(ctx, logger, cfg.DatabaseURL)
	r.EventBus = NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cfg.ServiceName, logger)
	r.Redis = NewRedisClient(cfg.RedisURL)

	locker := NewLocker(r.Redis, logger)

	opts := []scheduler.Option{}
	if cfg.SchedulerInterval > 0 {
		opts = append(opts, scheduler.WithInterval(cfg.SchedulerInterval))
	}

	r.Scheduler = scheduler.New(r.Persistence.ScheduleRepository(), logger, opts...)

	r.Dispatcher = dispatcher.New(dispatcher.Config{
		Sender:      newMessageSender(logger, cfg),
		Webhooks:    transport.NewHTTPWebhookCaller(logger, cfg.HTTPTimeout),
		Contacts:    r.Persistence.ContactRepository(),
		Logs:        r.Persistence.LogRepository(),
		Locker:      locker,
		Idempotency: NewIdempotencyStore(r.Redis),
		Publisher:   r.EventBus,
		Tracer:      r.Tracer,
		Logger:      logger,
	})

	r.Engine = engine.New(engine.Config{
		Persistence: r.Persistence,
		Decoder:     r.Registry,
		SideEffects: r.Dispatcher,
		Timers:      r.Scheduler,
		Locker:      locker,
		Publisher:   r.EventBus,
		Tracer:      r.Tracer,
		Logger:      logger,
		MaxSteps:    cfg.MaxSteps,
	})

	r.Scheduler.SetResumer(r.Engine)

	return r
}

// newMessageSender logs outbound messages when no provider endpoint is set.
//
//nolint:ireturn
func newMessageSender(logger *slog.Logger, cfg RuntimeConfig) protocol.MessageSender {
	if cfg.WhatsAppURL == "" {
		return transport.NewLogMessageSender(logger)
	}

	return transport.NewHTTPMessageSender(logger, cfg.WhatsAppURL, cfg.WhatsAppToken, cfg.HTTPTimeout)
}

func (r *Runtime) Close(ctx context.Context) {
	err := r.EventBus.Close()
	if err != nil {
		r.Logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if r.Redis != nil {
		err = r.Redis.Close()
		if err != nil {
			r.Logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
		}
	}

	err = r.Persistence.Close(ctx)
	if err != nil {
		r.Logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}

	if r.shutdownTracer != nil {
		err = r.shutdownTracer(ctx)
		if err != nil {
			r.Logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
