// Package engine runs execution contexts through their flow graphs. It
// creates contexts from triggers, evaluates nodes until the context
// suspends or ends, and resumes suspended contexts on events and timers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/dispatcher"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxSteps = 100

	recoverBatch = 100
)

// SideEffects applies node side effects and mirrors contact positions.
type SideEffects interface {
	Dispatch(ctx context.Context, req dispatcher.Request) (*dispatcher.Result, error)
	UpdateContactPosition(ctx context.Context, contactID, flowID, nodeID string) error
}

// Timers persists delayed resumptions.
type Timers interface {
	ScheduleResume(ctx context.Context, executionID string, epoch int64, dueAt time.Time) error
	Cancel(ctx context.Context, executionID string) error
}

// Enqueuer hands a running execution to a worker. Without one, the engine
// steps executions on the calling goroutine.
type Enqueuer interface {
	Enqueue(ctx context.Context, executionID string) error
}

type Config struct {
	Persistence persistence.Persistence
	Decoder     graph.Decoder
	SideEffects SideEffects
	Timers      Timers
	Locker      lock.Locker
	Enqueuer    Enqueuer
	// Publisher receives ExecutionFinished events. Optional.
	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
	Logger    *slog.Logger
	// MaxSteps bounds the nodes evaluated by one run of an execution.
	MaxSteps int
	Now      func() time.Time
}

type Engine struct {
	flows      persistence.FlowRepository
	executions persistence.ExecutionRepository
	logs       persistence.LogRepository
	contacts   persistence.ContactRepository
	decoder    graph.Decoder
	effects    SideEffects
	timers     Timers
	locker     lock.Locker
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
	maxSteps   int
	now        func() time.Time

	enqueueMu sync.RWMutex
	enqueuer  Enqueuer

	cacheMu sync.RWMutex
	graphs  map[string]cachedGraph
}

type cachedGraph struct {
	key   string
	graph *graph.Graph
}

func New(cfg Config) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.Noop()
	}

	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		flows:      cfg.Persistence.FlowRepository(),
		executions: cfg.Persistence.ExecutionRepository(),
		logs:       cfg.Persistence.LogRepository(),
		contacts:   cfg.Persistence.ContactRepository(),
		decoder:    cfg.Decoder,
		effects:    cfg.SideEffects,
		timers:     cfg.Timers,
		locker:     cfg.Locker,
		enqueuer:   cfg.Enqueuer,
		publisher:  cfg.Publisher,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger.With("module", "engine"),
		maxSteps:   cfg.MaxSteps,
		now:        cfg.Now,
		graphs:     make(map[string]cachedGraph),
	}
}

// SetEnqueuer switches the engine to asynchronous stepping.
func (e *Engine) SetEnqueuer(enqueuer Enqueuer) {
	e.enqueueMu.Lock()
	defer e.enqueueMu.Unlock()

	e.enqueuer = enqueuer
}

// Graph returns the compiled graph of flow, compiling it once per graph
// version and trigger definition.
func (e *Engine) Graph(ctx context.Context, flow *models.Flow) (*graph.Graph, error) {
	trigger, err := json.Marshal(flow.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger of flow %s: %w", flow.ID, err)
	}

	key := fmt.Sprintf("%d|%s", flow.GraphVersion, trigger)

	e.cacheMu.RLock()
	cached, ok := e.graphs[flow.ID]
	e.cacheMu.RUnlock()

	if ok && cached.key == key {
		return cached.graph, nil
	}

	nodes, edges, err := e.flows.LoadGraph(ctx, flow.ID)
	if err != nil {
		return nil, err
	}

	g, err := graph.Compile(flow, nodes, edges, e.decoder)
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	e.graphs[flow.ID] = cachedGraph{key: key, graph: g}
	e.cacheMu.Unlock()

	return g, nil
}

// Forget drops the compiled graph of a flow.
func (e *Engine) Forget(flowID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	delete(e.graphs, flowID)
}

// withConflictRetry reruns fn while it fails with a storage conflict.
func (e *Engine) withConflictRetry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	policy.Reset()

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !errors.Is(err, models.ErrStorageConflict) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(policy, ctx))
}

// schedule runs a running execution, on a worker when one is configured.
func (e *Engine) schedule(ctx context.Context, executionID string) error {
	e.enqueueMu.RLock()
	enqueuer := e.enqueuer
	e.enqueueMu.RUnlock()

	if enqueuer != nil {
		return enqueuer.Enqueue(ctx, executionID)
	}

	return e.Step(ctx, executionID)
}

// Recover hands back to a worker the running executions nobody advanced
// since before. Their step request was lost to a failed enqueue, a stopped
// pool or a crashed process. It returns how many were rescheduled.
func (e *Engine) Recover(ctx context.Context, before time.Time) (int, error) {
	stale, err := e.executions.Stale(ctx, before, recoverBatch)
	if err != nil {
		return 0, err
	}

	recovered := 0

	for _, ec := range stale {
		err := e.schedule(ctx, ec.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to recover execution", "execution_id", ec.ID, "error", err)

			continue
		}

		recovered++
	}

	if len(stale) > 0 {
		e.logger.InfoContext(ctx, "Recovered stale executions", "found", len(stale), "recovered", recovered)
	}

	return recovered, nil
}

// Status returns the latest execution of contactID in flowID.
func (e *Engine) Status(ctx context.Context, flowID, contactID string) (*models.ExecutionContext, error) {
	return e.executions.Latest(ctx, flowID, contactID)
}
