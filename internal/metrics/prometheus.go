package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	authAttemptsTotal *prometheus.CounterVec
	commandsTotal     *prometheus.CounterVec

	clientsRegisteredTotal prometheus.Counter
	clientsReapedTotal     prometheus.Counter

	noticesPostedTotal        *prometheus.CounterVec
	noticesRetransmittedTotal prometheus.Counter

	stickyNoticesStoredTotal  prometheus.Counter
	stickyNoticesClearedTotal prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_connections_total",
			Help: "Total number of notify-control TCP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifyd_connections_active",
			Help: "Number of currently active notify-control TCP connections.",
		}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_auth_attempts_total",
			Help: "Total number of sign-on attempts.",
		}, []string{"dialect", "result"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_commands_total",
			Help: "Total number of notify-control commands processed.",
		}, []string{"command"}),
		clientsRegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_clients_registered_total",
			Help: "Total number of client registrations accepted.",
		}),
		clientsReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_clients_reaped_total",
			Help: "Total number of registered clients dropped for inactivity.",
		}),
		noticesPostedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifyd_notices_posted_total",
			Help: "Total number of notices posted, by delivery outcome.",
		}, []string{"delivered"}),
		noticesRetransmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_notices_retransmitted_total",
			Help: "Total number of ATP request retransmissions.",
		}),
		stickyNoticesStoredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_sticky_notices_stored_total",
			Help: "Total number of sticky notices persisted.",
		}),
		stickyNoticesClearedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_sticky_notices_cleared_total",
			Help: "Total number of sticky notices cleared.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.clientsRegisteredTotal,
		c.clientsReapedTotal,
		c.noticesPostedTotal,
		c.noticesRetransmittedTotal,
		c.stickyNoticesStoredTotal,
		c.stickyNoticesClearedTotal,
	)

	return c
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *PrometheusCollector) AuthAttempt(dialect string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(dialect, result).Inc()
}

func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

func (c *PrometheusCollector) ClientRegistered() { c.clientsRegisteredTotal.Inc() }
func (c *PrometheusCollector) ClientReaped()     { c.clientsReapedTotal.Inc() }

func (c *PrometheusCollector) NoticePosted(delivered bool) {
	label := "false"
	if delivered {
		label = "true"
	}
	c.noticesPostedTotal.WithLabelValues(label).Inc()
}

func (c *PrometheusCollector) NoticeRetransmitted() { c.noticesRetransmittedTotal.Inc() }

func (c *PrometheusCollector) StickyNoticeStored() { c.stickyNoticesStoredTotal.Inc() }

func (c *PrometheusCollector) StickyNoticeCleared(count int) {
	c.stickyNoticesClearedTotal.Add(float64(count))
}

// HTTPServer implements the Server interface, serving the default
// Prometheus registry's gathered metrics over HTTP.
type HTTPServer struct {
	addr string
	path string
	srv  *http.Server
}

// NewHTTPServer builds a metrics HTTP server bound to addr serving path.
func NewHTTPServer(addr, path string) *HTTPServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &HTTPServer{addr: addr, path: path, srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves metrics until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.srv.Close()
	}()
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
