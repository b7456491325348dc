package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names. Outcomes and operations are attributes, not name parts.
const (
	InitiationsName    = "gosession.session.initiations"
	VerificationsName  = "gosession.session.verifications"
	StoreFailuresName  = "gosession.store.failures"
	AuditDroppedName   = "gosession.audit.dropped"
	DurationBucketName = "gosession.operation.duration.bucket"
	DurationCountName  = "gosession.operation.duration.count"
	DurationSumName    = "gosession.operation.duration.sum"
)

// Attribute keys.
const (
	OutcomeKey   = attribute.Key("outcome")
	OperationKey = attribute.Key("operation")
	BoundKey     = attribute.Key("le")
)

// Source is the read side of an engine consumed by the exporter.
type Source interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// outcome binds one engine counter to a point on a grouped instrument.
type outcome struct {
	id    goSession.MetricID
	attrs metric.ObserveOption
}

func outcomeOf(id goSession.MetricID, value string) outcome {
	return outcome{id: id, attrs: metric.WithAttributes(OutcomeKey.String(value))}
}

var (
	initiateOutcomes = []outcome{
		outcomeOf(goSession.MetricInitiateSuccess, "success"),
		outcomeOf(goSession.MetricInitiateFailure, "invalid_credentials"),
	}
	verifyOutcomes = []outcome{
		outcomeOf(goSession.MetricVerifySuccess, "success"),
		outcomeOf(goSession.MetricVerifyUnauthorized, "unauthorized"),
		outcomeOf(goSession.MetricVerifyMalformed, "malformed"),
		outcomeOf(goSession.MetricVerifySignatureInvalid, "signature_invalid"),
		outcomeOf(goSession.MetricVerifyExpired, "expired"),
		outcomeOf(goSession.MetricVerifySubjectGone, "subject_gone"),
	}
)

type operationLatency struct {
	id     goSession.MetricID
	attrs  metric.ObserveOption
	bounds [internaldefs.BucketCount]metric.ObserveOption
}

func latencyOf(id goSession.MetricID, operation string) operationLatency {
	op := OperationKey.String(operation)
	l := operationLatency{id: id, attrs: metric.WithAttributes(op)}
	for i, b := range internaldefs.UpperBounds() {
		l.bounds[i] = metric.WithAttributes(op, BoundKey.String(strconv.FormatFloat(b, 'f', -1, 64)))
	}
	l.bounds[internaldefs.BucketCount-1] = metric.WithAttributes(op, BoundKey.String("+Inf"))
	return l
}

// Exporter mirrors engine counters into OpenTelemetry observable instruments.
// Initiate and verify results are one counter each, split by an outcome
// attribute; latency is exposed per operation as cumulative bucket, count and
// sum series.
type Exporter struct {
	source       Source
	registration metric.Registration

	initiations    metric.Int64ObservableCounter
	verifications  metric.Int64ObservableCounter
	storeFailures  metric.Int64ObservableCounter
	auditDropped   metric.Int64ObservableCounter
	durationBucket metric.Int64ObservableGauge
	durationCount  metric.Int64ObservableCounter
	durationSum    metric.Float64ObservableCounter

	latencies []operationLatency
}

// NewExporter registers instruments on meter that read source on every collection.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source: source,
		latencies: []operationLatency{
			latencyOf(goSession.MetricInitiateLatency, "initiate"),
			latencyOf(goSession.MetricVerifyLatency, "verify"),
		},
	}

	var err error
	counter := func(dst *metric.Int64ObservableCounter, name, desc string, opts ...metric.Int64ObservableCounterOption) {
		if err != nil {
			return
		}
		opts = append(opts, metric.WithDescription(desc))
		if *dst, err = meter.Int64ObservableCounter(name, opts...); err != nil {
			err = fmt.Errorf("create observable counter %s: %w", name, err)
		}
	}
	counter(&e.initiations, InitiationsName, "Initiate calls by outcome.", metric.WithUnit("{call}"))
	counter(&e.verifications, VerificationsName, "Verify calls by outcome.", metric.WithUnit("{call}"))
	counter(&e.storeFailures, StoreFailuresName, "User store errors during initiate or verify.", metric.WithUnit("{error}"))
	counter(&e.auditDropped, AuditDroppedName, internaldefs.AuditDroppedHelp, metric.WithUnit("{event}"))
	counter(&e.durationCount, DurationCountName, "Timed calls per operation.", metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	e.durationBucket, err = meter.Int64ObservableGauge(DurationBucketName,
		metric.WithDescription("Cumulative count of calls at or under the le bound, in seconds."),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, fmt.Errorf("create observable gauge %s: %w", DurationBucketName, err)
	}
	e.durationSum, err = meter.Float64ObservableCounter(DurationSumName,
		metric.WithDescription("Total time spent per operation."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create observable counter %s: %w", DurationSumName, err)
	}

	e.registration, err = meter.RegisterCallback(e.observe,
		e.initiations, e.verifications, e.storeFailures, e.auditDropped,
		e.durationBucket, e.durationCount, e.durationSum)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, o := range initiateOutcomes {
		observer.ObserveInt64(e.initiations, int64(snapshot.Counters[o.id]), o.attrs)
	}
	for _, o := range verifyOutcomes {
		observer.ObserveInt64(e.verifications, int64(snapshot.Counters[o.id]), o.attrs)
	}
	observer.ObserveInt64(e.storeFailures, int64(snapshot.Counters[goSession.MetricStoreUnavailable]))
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, n := range cumulative {
			observer.ObserveInt64(e.durationBucket, int64(n), l.bounds[i])
		}
		observer.ObserveInt64(e.durationCount, int64(cumulative[internaldefs.BucketCount-1]), l.attrs)
		observer.ObserveFloat64(e.durationSum, snapshot.LatencySums[l.id].Seconds(), l.attrs)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
