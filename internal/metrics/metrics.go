// Package metrics records engine, scheduler and HTTP activity in
// Prometheus.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/scheduler"
)

const namespace = "conviction"

// Recorder implements engine.Recorder and scheduler.Recorder.
type Recorder struct {
	reg prometheus.Gatherer

	predictions  *prometheus.CounterVec
	staked       *prometheus.CounterVec
	fees         prometheus.Counter
	resolutions  *prometheus.CounterVec
	claims       prometheus.Counter
	paidOut      prometheus.Counter
	failures     *prometheus.CounterVec
	batchMarkets *prometheus.CounterVec
	batchLatency prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions recorded, by outcome.",
		}, []string{"outcome"}),
		staked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staked_base_units_total",
			Help:      "Net stake added to pools, in base units.",
		}, []string{"outcome"}),
		fees: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_base_units_total",
			Help:      "Protocol fees sent to the treasury, in base units.",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Markets resolved, by winning outcome.",
		}, []string{"outcome"}),
		claims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Rewards claimed.",
		}),
		paidOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_base_units_total",
			Help:      "Rewards paid, in base units.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed engine operations, by operation and error kind.",
		}, []string{"op", "kind"}),
		batchMarkets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_markets_total",
			Help:      "Markets handled by the expiry scheduler, by result.",
		}, []string{"result"}),
		batchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_batch_duration_seconds",
			Help:      "Time spent processing one scheduler batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// PredictionRecorded counts one prediction.
func (r *Recorder) PredictionRecorded(o domain.Outcome, stake, fee domain.Amount) {
	r.predictions.WithLabelValues(o.String()).Inc()
	r.staked.WithLabelValues(o.String()).Add(toFloat(stake))
	r.fees.Add(toFloat(fee))
}

// MarketResolved counts one resolution.
func (r *Recorder) MarketResolved(o domain.Outcome) {
	r.resolutions.WithLabelValues(o.String()).Inc()
}

// RewardClaimed counts one claim.
func (r *Recorder) RewardClaimed(payout domain.Amount) {
	r.claims.Inc()
	r.paidOut.Add(toFloat(payout))
}

// OperationFailed counts a failed engine operation by its error kind.
func (r *Recorder) OperationFailed(op string, err error) {
	r.failures.WithLabelValues(op, string(domain.KindOf(err))).Inc()
}

// BatchProcessed records a scheduler batch.
func (r *Recorder) BatchProcessed(res scheduler.BatchResult, took time.Duration) {
	r.batchMarkets.WithLabelValues("resolved").Add(float64(len(res.Resolved)))
	r.batchMarkets.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	r.batchMarkets.WithLabelValues("failed").Add(float64(len(res.Failed)))
	r.batchLatency.Observe(took.Seconds())
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(route, method string, status int, took time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(route, method).Observe(took.Seconds())
}

func toFloat(a domain.Amount) float64 {
	f, _ := new(big.Float).SetInt(a.Big()).Float64()
	return f
}
