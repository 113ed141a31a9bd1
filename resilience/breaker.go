package resilience

import (
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// breakerRegistry holds one gobreaker.CircuitBreaker per downstream host, as
// required by §4.E ("CircuitBreaker: per host") and §5 ("breaker state is
// NOT shared across instances" — each process owns its own registry).
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	policy   Policy
	log      *logrus.Entry
}

func newBreakerRegistry(policy Policy, log *logrus.Entry) *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker), policy: policy, log: log}
}

func (r *breakerRegistry) forHost(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[host]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: 1, // single probe allowed in half-open, per §4.E state machine
		Interval:    0, // never reset Closed-state counts on a timer; only on trip/success
		Timeout:     r.policy.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(r.policy.BreakerThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if r.log != nil {
				r.log.WithFields(logrus.Fields{"host": name, "from": from, "to": to}).
					Info("circuit breaker state transition")
			}
		},
	}
	b := gobreaker.NewCircuitBreaker(settings)
	r.breakers[host] = b
	return b
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Host
}

var breakerTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdap_breaker_transitions_total",
		Help: "Circuit breaker state transitions per downstream host.",
	},
	[]string{"host", "from", "to"},
)

func init() {
	prometheus.MustRegister(breakerTransitions)
}
