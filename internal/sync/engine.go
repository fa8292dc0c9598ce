package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/telemetry"
)

const (
	spanSync         = "holocron.sync"
	spanVote         = "holocron.vote"
	metricCreated    = "holocron.sync.records.created"
	metricExisting   = "holocron.sync.records.existing"
	metricUnresolved = "holocron.sync.records.unresolved"
	metricErrors     = "holocron.sync.errors"
	metricVotes      = "holocron.votes"
)

// Result summarises one sync run for one kind.
type Result struct {
	// RunID identifies the run in logs and traces.
	RunID string
	Kind  model.Kind

	// Fetched is the number of raw records the catalog returned.
	Fetched int

	// Created is the number of records that did not exist before this run.
	Created int

	// Existing is the number of records that were already stored and were
	// left untouched.
	Existing int

	// Unresolved counts records whose locator yielded no remote id. They are
	// still stored under model.InvalidRemoteID.
	Unresolved int

	Duration time.Duration
}

// FetchError reports that the catalog could not be read. Nothing was written
// to the store when it is returned.
type FetchError struct {
	Kind model.Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Engine runs sync and vote operations. Create one with [NewEngine]; it is
// safe for concurrent use as long as the Store is.
type Engine struct {
	fetcher Fetcher
	store   Store
	log     *slog.Logger

	// OTel instruments; no-op when telemetry is disabled.
	tracer        trace.Tracer
	cntCreated    metric.Int64Counter
	cntExisting   metric.Int64Counter
	cntUnresolved metric.Int64Counter
	cntErrors     metric.Int64Counter
	cntVotes      metric.Int64Counter
}

// NewEngine creates an Engine wired to the given catalog fetcher and store.
func NewEngine(fetcher Fetcher, store Store, logger *slog.Logger) *Engine {
	tracer := telemetry.Tracer(telemetry.ScopeSync)
	meter := telemetry.Meter(telemetry.ScopeSync)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		fetcher: fetcher,
		store:   store,
		log:     logger,

		tracer:        tracer,
		cntCreated:    mustCounter(metricCreated, "Number of records created by sync"),
		cntExisting:   mustCounter(metricExisting, "Number of fetched records that were already stored"),
		cntUnresolved: mustCounter(metricUnresolved, "Number of fetched records without a resolvable remote id"),
		cntErrors:     mustCounter(metricErrors, "Number of failed sync runs"),
		cntVotes:      mustCounter(metricVotes, "Number of votes cast"),
	}
}

// Sync imports every remote record of kind. The whole collection is fetched
// before anything is written, so a fetch failure leaves the store untouched.
// Each record is then get-or-created by its remote id; existing records are
// never updated. Result.Created is the number of new records.
//
// A store failure stops the run; the returned Result then covers the records
// processed before the failure.
func (e *Engine) Sync(ctx context.Context, kind model.Kind) (Result, error) {
	res := Result{RunID: uuid.NewString(), Kind: kind}
	if !kind.Valid() {
		return res, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}

	ctx, span := e.tracer.Start(ctx, spanSync, trace.WithAttributes(
		attribute.String("sync.kind", string(kind)),
		attribute.String("sync.run_id", res.RunID),
	))
	defer span.End()

	start := time.Now()
	log := e.log.With("kind", kind, "run_id", res.RunID)
	log.Info("sync started", "resource", kind.Resource())

	err := e.run(ctx, kind, &res, log)
	res.Duration = time.Since(start)

	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	if res.Created > 0 {
		e.cntCreated.Add(ctx, int64(res.Created), attrs)
	}
	if res.Existing > 0 {
		e.cntExisting.Add(ctx, int64(res.Existing), attrs)
	}
	if res.Unresolved > 0 {
		e.cntUnresolved.Add(ctx, int64(res.Unresolved), attrs)
	}
	span.SetAttributes(
		attribute.Int("sync.fetched", res.Fetched),
		attribute.Int("sync.created", res.Created),
		attribute.Int("sync.existing", res.Existing),
		attribute.Int("sync.unresolved", res.Unresolved),
	)

	if err != nil {
		e.cntErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("sync failed", "error", err, "created", res.Created, "duration", res.Duration)
		return res, err
	}

	log.Info("sync complete",
		"fetched", res.Fetched,
		"created", res.Created,
		"existing", res.Existing,
		"unresolved", res.Unresolved,
		"duration", res.Duration,
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, kind model.Kind, res *Result, log *slog.Logger) error {
	raws, err := e.fetcher.FetchAll(ctx, kind.Resource())
	if err != nil {
		return &FetchError{Kind: kind, Err: err}
	}
	res.Fetched = len(raws)

	for i, raw := range raws {
		rec, err := model.FromRemote(kind, raw)
		if err != nil {
			return err
		}
		meta := rec.Meta()
		if meta.RemoteID == model.InvalidRemoteID {
			res.Unresolved++
			log.Warn("record has no resolvable remote id", "index", i, "url", meta.URL)
		}

		_, outcome, err := e.store.GetOrCreate(ctx, rec)
		if err != nil {
			return fmt.Errorf("storing %s remote_id=%d: %w", kind.Singular(), meta.RemoteID, err)
		}
		switch outcome {
		case model.OutcomeCreated:
			res.Created++
			log.Debug("record created", "remote_id", meta.RemoteID)
		case model.OutcomeExisting:
			res.Existing++
		}
	}
	return nil
}

// SyncAll runs Sync for every kind in model.Kinds order and stops at the
// first failure. The results of the completed runs are returned either way.
func (e *Engine) SyncAll(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		res, err := e.Sync(ctx, kind)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
