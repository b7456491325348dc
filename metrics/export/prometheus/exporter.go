package prometheus

import (
	"net/http"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the read side of an engine consumed by the collector.
type Source interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// Collector exposes engine counters as a [prometheus.Collector]. Values are
// read from the source on every scrape; the collector holds no state of its own.
type Collector struct {
	source       Source
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
	bounds       []float64
}

type counterDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

// NewCollector returns a collector that reads source.
func NewCollector(source Source) *Collector {
	c := &Collector{
		source: source,
		bounds: internaldefs.UpperBounds(),
		auditDropped: prometheus.NewDesc(
			internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	for _, hd := range c.histograms {
		ch <- hd.desc
	}
	ch <- c.auditDropped
}

// Collect implements [prometheus.Collector]. Histograms are only emitted
// while the engine records latency.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(snapshot.Counters[cd.id]))
	}

	for _, hd := range c.histograms {
		raw, ok := snapshot.Histograms[hd.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(c.bounds))
		for i, bound := range c.bounds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]
		sum := snapshot.LatencySums[hd.id].Seconds()
		ch <- prometheus.MustNewConstHistogram(hd.desc, count, sum, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler serves the collector from a private registry, so nothing is added
// to the process-wide default registry.
func Handler(source Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
