package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pipelinedash/authcore"
	"github.com/pipelinedash/authcore/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type point struct {
	id   authcore.MetricID
	opts []metric.ObserveOption
}

type group struct {
	instrument metric.Int64ObservableCounter
	points     []point
}

// Exporter observes engine counters through grouped asynchronous
// instruments. A login success becomes authcore.logins{outcome="success"}
// rather than a counter of its own.
type Exporter struct {
	source       Source
	registration metric.Registration

	groups       []group
	latency      metric.Int64ObservableGauge
	latencyOpts  [][]metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the engine's instruments on meter.
func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	observables := make([]metric.Observable, 0, len(internaldefs.GroupDefs)+2)

	for _, def := range internaldefs.GroupDefs {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit(def.Unit),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}

		g := group{instrument: ins, points: make([]point, 0, len(def.Members))}
		for _, m := range def.Members {
			set := attribute.NewSet(attribute.String(def.Key, m.Value))
			g.points = append(g.points, point{
				id:   m.ID,
				opts: []metric.ObserveOption{metric.WithAttributeSet(set)},
			})
		}
		e.groups = append(e.groups, g)
		observables = append(observables, ins)
	}

	latency, err := meter.Int64ObservableGauge("authcore.authenticate.latency.buckets",
		metric.WithDescription("Cumulative authenticate latency samples at or below the le bound in seconds."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency gauge: %w", err)
	}
	e.latency = latency
	for _, le := range internaldefs.BucketLabels() {
		set := attribute.NewSet(attribute.String("le", le))
		e.latencyOpts = append(e.latencyOpts, []metric.ObserveOption{metric.WithAttributeSet(set)})
	}
	observables = append(observables, latency)

	dropped, err := meter.Int64ObservableCounter("authcore.audit.dropped",
		metric.WithDescription("Audit events dropped because the dispatcher queue was full."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, g := range e.groups {
		for _, p := range g.points {
			o.ObserveInt64(g.instrument, int64(snapshot.Counters[p.id]), p.opts...)
		}
	}

	// No samples means latency histograms are off.
	if raw, ok := snapshot.Histograms[authcore.MetricAuthenticateLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opts := range e.latencyOpts {
			o.ObserveInt64(e.latency, int64(cumulative[i]), opts...)
		}
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
