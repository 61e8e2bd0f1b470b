package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// session outcomes
const (
	OutcomeRedWin    = "red_win"
	OutcomeYellowWin = "yellow_win"
	OutcomeDraw      = "draw"
	// forfeit covers explicit forfeits and everything treated as one:
	// disconnects, timeouts and protocol violations once colors are assigned.
	OutcomeForfeit = "forfeit"
	// aborted sessions never got past the init exchange.
	OutcomeAborted = "aborted"
)

// protocol error kinds
const (
	ErrorInvalidEncoding  = "invalid_encoding"
	ErrorUnexpectedPacket = "unexpected_packet"
	ErrorIllegalMove      = "illegal_move"
	ErrorConnectionClosed = "connection_closed"
	ErrorTimeout          = "timeout"
)

type Config struct {
	Namespace string
	Registry  prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsOpen     prometheus.Gauge
	SessionsActive      prometheus.Gauge
	SessionsFinished    *prometheus.CounterVec
	Moves               prometheus.Counter
	ProtocolErrors      *prometheus.CounterVec
}

// New registers the game server collectors. without WithRegistry a private
// registry is used, which keeps tests and multiple servers apart.
func New(options ...Option) *Metrics {
	config := Config{
		Namespace: "fourparty",
		Registry:  prometheus.NewRegistry(),
	}
	for _, option := range options {
		option(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted player connections",
		}),
		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "connections_open",
			Help:      "Number of player connections currently open",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "sessions_active",
			Help:      "Number of game sessions in progress",
		}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of finished game sessions by outcome",
		}, []string{"outcome"}),
		Moves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "moves_total",
			Help:      "Total number of accepted moves",
		}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of session-ending errors by kind",
		}, []string{"kind"}),
	}
}

// NewRouter serves /metrics from gatherer and a trivial /healthz.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
