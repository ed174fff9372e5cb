package store

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Stats counts the operations a manager has performed on one domain. The
// counters are observability only; nothing on the correctness path reads them.
// Values accumulate in atomics for direct inspection and are mirrored onto
// OpenTelemetry counters for export.
type Stats struct {
	domain string

	loaded  atomic.Int64
	created atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
	errors  atomic.Int64

	loadedCnt  metric.Int64Counter
	createdCnt metric.Int64Counter
	updatedCnt metric.Int64Counter
	deletedCnt metric.Int64Counter
	errorsCnt  metric.Int64Counter

	attrs metric.MeasurementOption
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Loaded  int64
	Created int64
	Updated int64
	Deleted int64
	Errors  int64
}

// NewStats builds counters for one domain. Pass a noop.MeterProvider meter (or
// nil) when metrics export is not wired.
func NewStats(domain string, meter metric.Meter) *Stats {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("companion-sync")
	}
	s := &Stats{
		domain: domain,
		attrs:  metric.WithAttributes(attribute.String("domain", domain)),
	}
	s.loadedCnt, _ = meter.Int64Counter("entities.loaded", metric.WithDescription("Entities loaded from the remote store"))
	s.createdCnt, _ = meter.Int64Counter("entities.created", metric.WithDescription("Optimistic creates issued"))
	s.updatedCnt, _ = meter.Int64Counter("entities.updated", metric.WithDescription("Optimistic updates issued"))
	s.deletedCnt, _ = meter.Int64Counter("entities.deleted", metric.WithDescription("Optimistic deletes issued"))
	s.errorsCnt, _ = meter.Int64Counter("entities.errors", metric.WithDescription("Remote operations that failed"))
	return s
}

func (s *Stats) Loaded(ctx context.Context, n int64) {
	s.loaded.Add(n)
	s.loadedCnt.Add(ctx, n, s.attrs)
}

func (s *Stats) Created(ctx context.Context) {
	s.created.Add(1)
	s.createdCnt.Add(ctx, 1, s.attrs)
}

func (s *Stats) Updated(ctx context.Context) {
	s.updated.Add(1)
	s.updatedCnt.Add(ctx, 1, s.attrs)
}

func (s *Stats) Deleted(ctx context.Context) {
	s.deleted.Add(1)
	s.deletedCnt.Add(ctx, 1, s.attrs)
}

func (s *Stats) Error(ctx context.Context) {
	s.errors.Add(1)
	s.errorsCnt.Add(ctx, 1, s.attrs)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Loaded:  s.loaded.Load(),
		Created: s.created.Load(),
		Updated: s.updated.Load(),
		Deleted: s.deleted.Load(),
		Errors:  s.errors.Load(),
	}
}
