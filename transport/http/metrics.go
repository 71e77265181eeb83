package http

import (
	"net/http"

	"github.com/layer-3/gatekeeper/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels
const (
	OpCaptchaIssue   = "captcha_issue"
	OpCaptchaVerify  = "captcha_verify"
	OpCaptchaRefresh = "captcha_refresh"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpRecover        = "recover"
	OpLogout         = "logout"
	OpAuthenticate   = "authenticate"
)

// Metrics counts auth operations by outcome
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
}

// NewMetrics registers the auth counters on registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekeeper",
		Name:      "auth_operations_total",
		Help:      "Authentication operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})

	if err := registry.Register(operations); err != nil {
		return nil, err
	}

	return &Metrics{registry: registry, operations: operations}, nil
}

// Observe records one operation. The outcome is "success" or the failure reason.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(core.ReasonOf(err))
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
