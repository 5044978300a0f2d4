package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "stark_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(g)
		return g
	}

	m := &Metrics{
		QuotesReceived:     promCounter{counter("quotes_received_total", "Quote updates accepted from venue feeds.")},
		SpreadEvaluations:  promCounter{counter("spread_evaluations_total", "State machine evaluations run.")},
		IntentsOpen:        promCounter{counter("intents_open_total", "Open intents emitted.")},
		IntentsAdd:         promCounter{counter("intents_add_total", "Add intents emitted.")},
		IntentsClose:       promCounter{counter("intents_close_total", "Close intents emitted.")},
		OrdersPlaced:       promCounter{counter("orders_placed_total", "Orders successfully placed.")},
		OrdersFailed:       promCounter{counter("orders_failed_total", "Order placement failures.")},
		SubmissionTimeouts: promCounter{counter("submission_timeouts_total", "Submissions with no confirmed outcome in time.")},
		Halts:              promCounter{counter("halts_total", "Daily loss limit halts.")},
		CurrentSpread:      promGauge{gauge("current_spread", "Latest computed cross-venue spread.")},
		DailyLoss:          promGauge{gauge("daily_loss", "Realized loss accumulated for the current UTC day.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
