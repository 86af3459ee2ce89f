package projections

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	"github.com/wms-platform/stock-ledger-service/pkg/tracing"
)

const tracerName = "stock-ledger-service/projections"

// ErrUnknownProjection is returned for a projection name the engine does not run
var ErrUnknownProjection = errors.New("unknown projection")

// Mode selects how a rebuild starts
type Mode string

const (
	// ModeFull truncates the projection and replays the whole log.
	ModeFull Mode = "full"
	// ModeIncremental resumes from the projection's checkpoint.
	ModeIncremental Mode = "incremental"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull:
		return ModeFull, nil
	case ModeIncremental, "":
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown rebuild mode %q", s)
	}
}

// EngineConfig holds replay settings
type EngineConfig struct {
	BatchSize int
}

// DefaultEngineConfig returns the default replay settings
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{BatchSize: 500}
}

// Engine feeds events to projections in global sequence order. Each projection
// has its own checkpoint and is processed by at most one caller at a time.
type Engine struct {
	events      domain.EventReader
	store       ViewStore
	projections map[string]Projection
	names       []string
	locks       map[string]*sync.Mutex
	batchSize   int
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewEngine creates an engine over the given projections
func NewEngine(events domain.EventReader, store ViewStore, config *EngineConfig, logger *logging.Logger, m *metrics.Metrics, projections ...Projection) *Engine {
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEngineConfig().BatchSize
	}

	e := &Engine{
		events:      events,
		store:       store,
		projections: make(map[string]Projection, len(projections)),
		locks:       make(map[string]*sync.Mutex, len(projections)),
		batchSize:   batchSize,
		logger:      logger.WithComponent("projection-engine"),
		metrics:     m,
	}
	for _, p := range projections {
		e.projections[p.Name()] = p
		e.locks[p.Name()] = &sync.Mutex{}
		e.names = append(e.names, p.Name())
	}
	sort.Strings(e.names)
	return e
}

// Names lists the registered projections
func (e *Engine) Names() []string {
	return append([]string(nil), e.names...)
}

func (e *Engine) projection(name string) (Projection, *sync.Mutex, error) {
	p, ok := e.projections[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}
	return p, e.locks[name], nil
}

// Rebuild brings one projection up to the head of the log. ModeFull discards
// the projection's views and checkpoint first.
func (e *Engine) Rebuild(ctx context.Context, name string, mode Mode) (report *RebuildReport, err error) {
	p, lock, err := e.projection(name)
	if err != nil {
		return nil, err
	}
	if mode != ModeFull && mode != ModeIncremental {
		return nil, fmt.Errorf("unknown rebuild mode %q", mode)
	}

	lock.Lock()
	defer lock.Unlock()

	ctx, span := tracing.StartSpan(ctx, tracerName, "projections.Rebuild",
		attribute.String(tracing.AttrProjection, name),
		attribute.String(tracing.AttrRebuildMode, string(mode)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	report = newRebuildReport(name, mode)
	defer func() {
		report.finish(err)
		e.metrics.RecordRebuild(name, string(mode), report.CompletedAt.Sub(report.StartedAt))
		e.logger.RebuildCompleted(ctx, name, string(mode), report.Applied, report.Malformed, report.ToSequence, report.CompletedAt.Sub(report.StartedAt))
	}()

	if mode == ModeFull {
		if err = e.store.Reset(ctx, name, p.Collections()); err != nil {
			return report, fmt.Errorf("reset %s: %w", name, err)
		}
		e.metrics.SetProjectionCheckpoint(name, 0)
	}

	cp, err := e.store.Checkpoint(ctx, name)
	if err != nil {
		return report, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	report.FromSequence = cp.Sequence
	report.ToSequence = cp.Sequence

	err = e.catchUp(ctx, p, cp.Sequence, 0, report)
	return report, err
}

// RebuildAll rebuilds every projection, continuing past failures
func (e *Engine) RebuildAll(ctx context.Context, mode Mode) ([]*RebuildReport, error) {
	var (
		reports []*RebuildReport
		errs    []error
	)
	for _, name := range e.names {
		report, err := e.Rebuild(ctx, name, mode)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Deliver applies a pushed event to one projection. Events at or below the
// checkpoint are duplicates and ignored; an event that skips ahead triggers a
// catch-up from the log up to and including it.
func (e *Engine) Deliver(ctx context.Context, name string, env *domain.Envelope) error {
	p, lock, err := e.projection(name)
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()

	cp, err := e.store.Checkpoint(ctx, name)
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", name, err)
	}

	report := newRebuildReport(name, ModeIncremental)
	switch {
	case env.Sequence <= cp.Sequence:
		e.metrics.RecordProjectionEvent(name, metrics.StatusDuplicate)
		return nil
	case env.Sequence > cp.Sequence+1:
		e.logger.WithProjection(name).Debug("Sequence gap, catching up from event log",
			"checkpoint", cp.Sequence,
			"received", env.Sequence,
		)
		return e.catchUp(ctx, p, cp.Sequence, env.Sequence, report)
	default:
		return e.applyEnvelope(ctx, p, env, report)
	}
}

// CatchUpAll runs an incremental rebuild of every projection
func (e *Engine) CatchUpAll(ctx context.Context) error {
	_, err := e.RebuildAll(ctx, ModeIncremental)
	return err
}

// Run keeps every projection caught up by polling the log until ctx ends
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Projection catch-up loop started", "interval", interval.String())
	for {
		if err := e.CatchUpAll(ctx); err != nil && ctx.Err() == nil {
			e.logger.WithError(err).Error("Projection catch-up failed")
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Projection catch-up loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// catchUp applies log events after `after`, stopping at upTo when it is non-zero.
func (e *Engine) catchUp(ctx context.Context, p Projection, after, upTo uint64, report *RebuildReport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := e.events.ReadAll(ctx, after, e.batchSize)
		if err != nil {
			return fmt.Errorf("read events after %d: %w", after, err)
		}

		for _, env := range batch {
			if upTo > 0 && env.Sequence > upTo {
				return nil
			}
			if env.Sequence <= after {
				return fmt.Errorf("event log out of order: sequence %d after %d", env.Sequence, after)
			}
			if err := e.applyEnvelope(ctx, p, env, report); err != nil {
				return err
			}
			after = env.Sequence
		}

		if len(batch) < e.batchSize {
			return nil
		}
	}
}

func (e *Engine) applyEnvelope(ctx context.Context, p Projection, env *domain.Envelope, report *RebuildReport) error {
	name := p.Name()
	next := Checkpoint{
		Consumer:  name,
		EventID:   env.EventID,
		Sequence:  env.Sequence,
		UpdatedAt: time.Now().UTC(),
	}

	change, decodeErr := ChangeFromEnvelope(env)
	if decodeErr != nil && !errors.Is(decodeErr, domain.ErrMalformedEvent) {
		return decodeErr
	}

	fn := func(tx ViewTx) error { return p.Handle(ctx, tx, change) }
	if decodeErr != nil {
		// Skipped, but the checkpoint still advances past it.
		fn = func(ViewTx) error { return nil }
	}

	applied, err := e.store.Apply(ctx, next, fn)
	if err != nil {
		e.metrics.RecordProjectionEvent(name, metrics.StatusFailed)
		return fmt.Errorf("apply event %d to %s: %w", env.Sequence, name, err)
	}
	if !applied {
		report.Duplicates++
		e.metrics.RecordProjectionEvent(name, metrics.StatusDuplicate)
		return nil
	}

	if decodeErr != nil {
		e.logger.MalformedEvent(ctx, name, env.EventID, env.EventType, env.Sequence, decodeErr)
		report.addMalformed(env, decodeErr)
		e.metrics.RecordProjectionEvent(name, metrics.StatusMalformed)
	} else {
		report.Applied++
		e.metrics.RecordProjectionEvent(name, metrics.StatusApplied)
	}
	report.ToSequence = env.Sequence
	e.metrics.SetProjectionCheckpoint(name, env.Sequence)
	return nil
}

// ProjectionStatus describes how far a projection is behind the log
type ProjectionStatus struct {
	Name       string    `json:"name"`
	Checkpoint uint64    `json:"checkpoint"`
	Head       uint64    `json:"head"`
	Lag        uint64    `json:"lag"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// Status reports every projection's checkpoint against the head of the log
func (e *Engine) Status(ctx context.Context) ([]ProjectionStatus, error) {
	head, err := e.events.LastSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head sequence: %w", err)
	}

	out := make([]ProjectionStatus, 0, len(e.names))
	for _, name := range e.names {
		cp, err := e.store.Checkpoint(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
		}
		status := ProjectionStatus{Name: name, Checkpoint: cp.Sequence, Head: head, UpdatedAt: cp.UpdatedAt}
		if head > cp.Sequence {
			status.Lag = head - cp.Sequence
		}
		out = append(out, status)
	}
	return out, nil
}
