package container

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	constructionsTotal        *prometheus.CounterVec
	constructionFailuresTotal *prometheus.CounterVec
	earlyExposuresTotal       prometheus.Counter
	destructionsTotal         prometheus.Counter
	destructionFailuresTotal  prometheus.Counter
	resolveDurationSeconds    *prometheus.HistogramVec
	liveSingletons            prometheus.Gauge
)

func MustRegisterMetrics(registerer prometheus.Registerer) {
	if err := RegisterMetrics(registerer); err != nil {
		panic(err)
	}
}

func RegisterMetrics(registerer prometheus.Registerer) error {
	return errors.Join(
		registerer.Register(constructionsTotal),
		registerer.Register(constructionFailuresTotal),
		registerer.Register(earlyExposuresTotal),
		registerer.Register(destructionsTotal),
		registerer.Register(destructionFailuresTotal),
		registerer.Register(resolveDurationSeconds),
		registerer.Register(liveSingletons),
	)
}

func init() {
	constructionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "container_constructions_total",
		Help: "Total number of completed component constructions",
	}, []string{"scope"})
	constructionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "container_construction_failures_total",
		Help: "Total number of failed component constructions by pipeline stage",
	}, []string{"stage"})
	earlyExposuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "container_early_exposures_total",
		Help: "Total number of early references handed to dependency-cycle peers",
	})
	destructionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "container_destructions_total",
		Help: "Total number of component teardowns",
	})
	destructionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "container_destruction_failures_total",
		Help: "Total number of component teardowns that reported errors",
	})
	resolveDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "container_resolve_duration_seconds",
		Help:    "Duration of top-level component resolutions",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	liveSingletons = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "container_live_singletons",
		Help: "Number of finished singletons currently held by the container",
	})
}
