// Package prometheus exports sketch metrics through client_golang.
//
//	c, err := prometheus.NewCollector(prom.DefaultRegisterer, "topkapi")
//	s, err := topkapi.New(4096, 4, 32, topkapi.WithMetricsCollector(c))
//	http.Handle("/metrics", promhttp.Handler())
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/topkapi"
)

// Collector implements topkapi.MetricsCollector.
type Collector struct {
	addKeys   prometheus.Counter
	addWeight prometheus.Counter
	opLatency *prometheus.HistogramVec
	ioBytes   *prometheus.CounterVec
	results   prometheus.Histogram
}

var _ topkapi.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics under namespace and registers them with
// reg. A nil reg skips registration.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		addKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "added_keys_total",
			Help:      "Keys added to sketches.",
		}),
		addWeight: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "added_weight_total",
			Help:      "Total weight added to sketches.",
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of merge, query, save and load operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		ioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_bytes_total",
			Help:      "Bytes written by Save and read by Load.",
		}, []string{"op"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of heavy hitters returned per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	if reg != nil {
		for _, m := range []prometheus.Collector{c.addKeys, c.addWeight, c.opLatency, c.ioBytes, c.results} {
			if err := reg.Register(m); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordAdd(keys int, weight uint64) {
	c.addKeys.Add(float64(keys))
	c.addWeight.Add(float64(weight))
}

func (c *Collector) RecordMerge(d time.Duration, err error) {
	c.opLatency.WithLabelValues("merge", status(err)).Observe(d.Seconds())
}

func (c *Collector) RecordQuery(_ int, results int, d time.Duration) {
	c.opLatency.WithLabelValues("query", "success").Observe(d.Seconds())
	c.results.Observe(float64(results))
}

func (c *Collector) RecordSave(bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("save", status(err)).Observe(d.Seconds())
	if err == nil {
		c.ioBytes.WithLabelValues("save").Add(float64(bytes))
	}
}

func (c *Collector) RecordLoad(bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	if err == nil {
		c.ioBytes.WithLabelValues("load").Add(float64(bytes))
	}
}
