package sync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/holocron/internal/model"
)

// Vote adds one vote to the stored record of kind with the given local id and
// returns the record as it is after the vote. A missing record yields an
// error matching model.ErrNotFound and changes nothing.
func (e *Engine) Vote(ctx context.Context, kind model.Kind, id int64) (model.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}

	ctx, span := e.tracer.Start(ctx, spanVote, trace.WithAttributes(
		attribute.String("vote.kind", string(kind)),
		attribute.Int64("vote.id", id),
	))
	defer span.End()

	rec, err := e.store.IncrementVotes(ctx, kind, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.cntVotes.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	span.SetAttributes(attribute.Int64("vote.votes", rec.Meta().Votes))
	e.log.Debug("vote recorded", "kind", kind, "id", id, "votes", rec.Meta().Votes)
	return rec, nil
}
