package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DBPoolStat is a snapshot of connection pool statistics.
type DBPoolStat struct {
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
}

// DBPoolStatFunc returns current pool statistics. It is called on every
// scrape, so it must be cheap and safe for concurrent use.
type DBPoolStatFunc func() DBPoolStat

type dbPoolCollector struct {
	statFunc DBPoolStatFunc

	totalConns    *prometheus.Desc
	idleConns     *prometheus.Desc
	acquiredConns *prometheus.Desc
}

// NewDBPoolCollector creates a collector that exposes database connection
// pool gauges from the given stat function.
func NewDBPoolCollector(statFunc DBPoolStatFunc) prometheus.Collector {
	return &dbPoolCollector{
		statFunc: statFunc,
		totalConns: prometheus.NewDesc(
			"dmphub_db_pool_total_conns",
			"Total number of connections in the pool.",
			nil, nil,
		),
		idleConns: prometheus.NewDesc(
			"dmphub_db_pool_idle_conns",
			"Number of idle connections in the pool.",
			nil, nil,
		),
		acquiredConns: prometheus.NewDesc(
			"dmphub_db_pool_acquired_conns",
			"Number of connections currently acquired from the pool.",
			nil, nil,
		),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.statFunc()
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns))
}
