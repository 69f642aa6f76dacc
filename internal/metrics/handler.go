package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Handler returns the Prometheus exposition format handler for this
// service's private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Summary is a human-readable snapshot of key service metrics.
type Summary struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	HTTP struct {
		RequestsTotal    float64 `json:"requests_total"`
		ErrorRatePercent float64 `json:"error_rate_percent"`
		P50LatencyMs     float64 `json:"p50_latency_ms"`
		P95LatencyMs     float64 `json:"p95_latency_ms"`
	} `json:"http"`

	Ingest struct {
		Accepted    float64 `json:"accepted"`
		Duplicates  float64 `json:"duplicates"`
		ParseErrors float64 `json:"parse_errors"`
		Errors      float64 `json:"errors"`
	} `json:"ingest"`

	Accounts struct {
		ProvisionedUsers float64 `json:"provisioned_users"`
	} `json:"accounts"`

	Auth struct {
		Successes float64 `json:"successes"`
		Failures  float64 `json:"failures"`
	} `json:"auth"`

	RateLimit struct {
		Rejections float64 `json:"rejections"`
	} `json:"rate_limit"`

	DBPool struct {
		TotalConns    float64 `json:"total_conns"`
		IdleConns     float64 `json:"idle_conns"`
		AcquiredConns float64 `json:"acquired_conns"`
	} `json:"db_pool"`
}

// SummaryHandler returns a handler that renders a JSON summary computed
// from the current registry contents.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			slog.Error("failed to gather metrics", "error", err)
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		byName := make(map[string]*dto.MetricFamily, len(families))
		for _, mf := range families {
			byName[mf.GetName()] = mf
		}

		var s Summary
		if start := gaugeValue(byName["dmphub_server_start_time_seconds"]); start > 0 {
			s.UptimeSeconds = time.Since(time.Unix(int64(start), 0)).Seconds()
		}

		s.HTTP.RequestsTotal = sumCounter(byName["dmphub_http_requests_total"])
		s.HTTP.ErrorRatePercent = computeErrorRate(byName["dmphub_http_requests_total"])
		s.HTTP.P50LatencyMs = histogramPercentile(byName["dmphub_http_request_duration_seconds"], 0.50) * 1000
		s.HTTP.P95LatencyMs = histogramPercentile(byName["dmphub_http_request_duration_seconds"], 0.95) * 1000

		s.Ingest.Accepted = counterWithLabel(byName["dmphub_ingest_total"], "outcome", "accepted")
		s.Ingest.Duplicates = counterWithLabel(byName["dmphub_ingest_total"], "outcome", "duplicate")
		s.Ingest.ParseErrors = counterWithLabel(byName["dmphub_ingest_total"], "outcome", "parse_error")
		s.Ingest.Errors = counterWithLabel(byName["dmphub_ingest_total"], "outcome", "error")

		s.Accounts.ProvisionedUsers = sumCounter(byName["dmphub_provisioned_users_total"])
		s.Auth.Successes = sumCounter(byName["dmphub_auth_successes_total"])
		s.Auth.Failures = sumCounter(byName["dmphub_auth_failures_total"])
		s.RateLimit.Rejections = sumCounter(byName["dmphub_ratelimit_rejections_total"])

		s.DBPool.TotalConns = gaugeValue(byName["dmphub_db_pool_total_conns"])
		s.DBPool.IdleConns = gaugeValue(byName["dmphub_db_pool_idle_conns"])
		s.DBPool.AcquiredConns = gaugeValue(byName["dmphub_db_pool_acquired_conns"])

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			slog.Error("failed to encode metrics summary", "error", err)
		}
	}
}

func sumCounter(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func counterWithLabel(mf *dto.MetricFamily, name, value string) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func computeErrorRate(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total, errors float64
	for _, m := range mf.GetMetric() {
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" && len(lp.GetValue()) > 0 && lp.GetValue()[0] == '5' {
				errors += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total * 100
}

// histogramPercentile estimates a percentile from cumulative histogram
// buckets using linear interpolation within the matched bucket.
func histogramPercentile(mf *dto.MetricFamily, quantile float64) float64 {
	if mf == nil {
		return 0
	}

	// Merge buckets across all label combinations.
	merged := map[float64]uint64{}
	var totalCount uint64
	for _, m := range mf.GetMetric() {
		h := m.GetHistogram()
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			merged[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if totalCount == 0 {
		return 0
	}

	bounds := make([]float64, 0, len(merged))
	for ub := range merged {
		bounds = append(bounds, ub)
	}
	sort.Float64s(bounds)

	target := quantile * float64(totalCount)
	var prevBound float64
	var prevCount uint64
	for _, ub := range bounds {
		count := merged[ub]
		if float64(count) >= target {
			if count == prevCount {
				return ub
			}
			frac := (target - float64(prevCount)) / float64(count-prevCount)
			return prevBound + frac*(ub-prevBound)
		}
		prevBound = ub
		prevCount = count
	}
	return prevBound
}
