package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

const namespace = "bnplbot"

// Prometheus implementa ports.Metrics sobre un registry propio.
type Prometheus struct {
	registry *prometheus.Registry

	scenarios *prometheus.CounterVec
	volume    *prometheus.CounterVec
	goalPct   *prometheus.GaugeVec
	goalValue *prometheus.GaugeVec
	paused    prometheus.Gauge
	failures  prometheus.Gauge
}

// New registra las métricas del bot y los collectors del proceso.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenarios_total",
				Help:      "Scenario executions by type and result",
			},
			[]string{"scenario", "result"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volume_usdc_total",
				Help:      "USDC moved by successful scenarios",
			},
			[]string{"scenario"},
		),
		goalPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goal_progress_percent",
				Help:      "Progress towards each goal, clamped to 0-100",
			},
			[]string{"goal"},
		),
		goalValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goal_current",
				Help:      "Current value of each goal dimension",
			},
			[]string{"goal"},
		),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the scheduler is paused",
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Circuit breaker failure counter",
		}),
	}

	p.registry.MustRegister(
		p.scenarios, p.volume, p.goalPct, p.goalValue, p.paused, p.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveScenario cuenta una ejecución y su volumen.
func (p *Prometheus) ObserveScenario(t domain.ScenarioType, success bool, volume float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.scenarios.WithLabelValues(string(t), result).Inc()
	if success && volume > 0 {
		p.volume.WithLabelValues(string(t)).Add(volume)
	}
}

// SetGoalProgress publica el último cálculo de progreso.
func (p *Prometheus) SetGoalProgress(g domain.GoalProgress) {
	for name, m := range map[string]domain.Metric{
		"tvl":       g.TVL,
		"merchants": g.Merchants,
		"users":     g.Users,
		"daily_tx":  g.DailyTx,
	} {
		p.goalPct.WithLabelValues(name).Set(m.Percentage)
		p.goalValue.WithLabelValues(name).Set(m.Current)
	}
}

func (p *Prometheus) SetPaused(paused bool) {
	if paused {
		p.paused.Set(1)
		return
	}
	p.paused.Set(0)
}

func (p *Prometheus) SetConsecutiveFailures(n int) {
	p.failures.Set(float64(n))
}

// Handler expone el registry en formato de texto de Prometheus.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
