package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the tracker's own instruments. All methods are nil-safe so
// callers can run without metrics wired (tests, dev mode).
type Metrics struct {
	scanResolutions *prometheus.CounterVec
	codesTotal      prometheus.Gauge
	scansTotal      prometheus.Gauge
}

// NewMetrics registers the tracker metrics on the given registerer (pass
// prometheus.DefaultRegisterer in production).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scanResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qrtrail_scan_resolutions_total",
			Help: "Resolved scan tokens by outcome.",
		}, []string{"outcome"}),
		codesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qrtrail_codes_total",
			Help: "Number of code rows currently stored.",
		}),
		scansTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qrtrail_scans_total",
			Help: "Number of scan rows currently stored.",
		}),
	}
}

// ObserveResolution counts one resolver outcome.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.scanResolutions.WithLabelValues(outcome).Inc()
}

// SetTotals publishes the current table sizes.
func (m *Metrics) SetTotals(codes, scans int64) {
	if m == nil {
		return
	}
	m.codesTotal.Set(float64(codes))
	m.scansTotal.Set(float64(scans))
}
