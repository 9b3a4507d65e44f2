package metrics

import (
	"github.com/layer-3/walletauth/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walletauth"

// Prometheus records authentication outcomes as counters on a registry.
type Prometheus struct {
	noncesIssued     prometheus.Counter
	loginAttempts    *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
}

// NewPrometheus registers the counters on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		noncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonces_issued_total",
			Help:      "Number of nonces handed out.",
		}),
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Number of login attempts by outcome.",
		}, []string{"outcome"}),
		tokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Number of token validations by outcome.",
		}, []string{"outcome"}),
	}
}

func (p *Prometheus) NonceIssued() {
	p.noncesIssued.Inc()
}

func (p *Prometheus) LoginAttempt(outcome string) {
	p.loginAttempts.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) TokenValidation(outcome string) {
	p.tokenValidations.WithLabelValues(outcome).Inc()
}

var _ ports.Metrics = (*Prometheus)(nil)
