package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics endpoint.
type Summary struct {
	HTTP      httpSummary   `json:"http"`
	Auth      authInfo      `json:"auth"`
	RateLimit rateLimitInfo `json:"rateLimit"`
	CSRF      csrfInfo      `json:"csrf"`
	Sweeper   sweeperInfo   `json:"sweeper"`
	DB        dbInfo        `json:"db"`
	Server    serverInfo    `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authInfo struct {
	Successes float64 `json:"successes"`
	Failures  float64 `json:"failures"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type csrfInfo struct {
	Rejections float64 `json:"rejections"`
}

type sweeperInfo struct {
	Sweeps      float64 `json:"sweeps"`
	TokensSwept float64 `json:"tokensSwept"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves a JSON summary computed
// from the gathered metric families.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		fam := make(map[string]*dto.MetricFamily, len(families))
		for _, f := range families {
			fam[f.GetName()] = f
		}

		startTime := gaugeValue(fam["tabilist_server_start_time_seconds"])
		summary := Summary{
			HTTP: httpSummary{
				TotalRequests: sumCounter(fam["tabilist_http_requests_total"]),
				ErrorRate:     computeErrorRate(fam["tabilist_http_requests_total"]),
				P50Latency:    histogramPercentile(fam["tabilist_http_request_duration_seconds"], 0.50),
				P95Latency:    histogramPercentile(fam["tabilist_http_request_duration_seconds"], 0.95),
				P99Latency:    histogramPercentile(fam["tabilist_http_request_duration_seconds"], 0.99),
			},
			Auth: authInfo{
				Successes: sumCounter(fam["tabilist_auth_successes_total"]),
				Failures:  sumCounter(fam["tabilist_auth_failures_total"]),
			},
			RateLimit: rateLimitInfo{
				Rejections: sumCounter(fam["tabilist_ratelimit_rejections_total"]),
			},
			CSRF: csrfInfo{
				Rejections: sumCounter(fam["tabilist_csrf_rejections_total"]),
			},
			Sweeper: sweeperInfo{
				Sweeps:      sumCounter(fam["tabilist_refresh_token_sweeps_total"]),
				TokensSwept: sumCounter(fam["tabilist_refresh_tokens_swept_total"]),
			},
			DB: dbInfo{
				TotalConns:    gaugeValue(fam["tabilist_db_pool_total_conns"]),
				IdleConns:     gaugeValue(fam["tabilist_db_pool_idle_conns"]),
				AcquiredConns: gaugeValue(fam["tabilist_db_pool_acquired_conns"]),
			},
			Server: serverInfo{
				StartTime:     startTime,
				UptimeSeconds: float64(time.Now().Unix()) - startTime,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errored float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '5' {
					errored += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errored / total
}

// histogramPercentile estimates the given quantile across all series of a
// histogram family by merging their cumulative buckets.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	merged := map[float64]uint64{}
	var count uint64
	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		count += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			merged[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if count == 0 {
		return 0
	}

	bounds := make([]float64, 0, len(merged))
	for ub := range merged {
		bounds = append(bounds, ub)
	}
	sort.Float64s(bounds)

	target := uint64(math.Ceil(q * float64(count)))
	for _, ub := range bounds {
		if merged[ub] >= target {
			return ub
		}
	}
	if len(bounds) > 0 {
		return bounds[len(bounds)-1]
	}
	return 0
}
