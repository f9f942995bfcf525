// Package metrics exposes Prometheus counters for registry operations and
// serves them on a dedicated listener, kept off the public API address.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Domain counters. Registered on the default registry so every component
// can bump them without plumbing.
var (
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vface_registrations_total",
		Help: "Successful identity registrations.",
	})
	SybilRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vface_sybil_rejections_total",
		Help: "Registrations rejected by the similarity check.",
	})
	RevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vface_revocations_total",
		Help: "Successful identity revocations.",
	})
	SearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vface_searches_total",
		Help: "Similarity searches served.",
	})
	TokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vface_consent_tokens_issued_total",
		Help: "Consent tokens issued on approval.",
	})
	TokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vface_token_verifications_total",
		Help: "Token verification outcomes.",
	}, []string{"outcome"})

	upGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vface_up",
		Help: "Set to 1 while the named service is running.",
	}, []string{"service"})
)

// MetricsServer serves /metrics on its own address.
type MetricsServer struct {
	srv *http.Server
}

// New builds a metrics server for the given service name and address. An
// empty address yields a server that is never started; callers gate
// ListenAndServe on the address themselves.
func New(name, addr string) (*MetricsServer, error) {
	upGauge.WithLabelValues(name).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
