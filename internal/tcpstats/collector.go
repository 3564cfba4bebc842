//go:build linux

// Package tcpstats exposes TCP_INFO-derived gauges for the connections the
// campus protocol servers are currently holding open, as a Prometheus
// collector that gathers on scrape rather than polling on a timer.
package tcpstats

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/higebu/netfd"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

type connEntry struct {
	fd     int
	labels []string
}

// Collector gathers live TCP_INFO socket state for a tracked set of
// connections on every Prometheus scrape. Connections are added when a
// protocol server accepts them and removed when they close; a connection
// that errors on an attempted TCP_INFO read (because the socket has since
// died) is dropped from the tracked set rather than reported as failing.
type Collector struct {
	mu     sync.Mutex
	conns  map[net.Conn]connEntry
	descs  map[string]*prometheus.Desc
	logger *slog.Logger
}

// NewCollector builds a Collector. variableLabels names the label dimensions
// supplied per-connection via Add; constLabels are fixed for the process
// (such as the protocol name).
func NewCollector(variableLabels []string, constLabels prometheus.Labels, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		conns:  make(map[net.Conn]connEntry),
		descs:  makeDescs(variableLabels, constLabels),
		logger: logger,
	}
}

func makeDescs(variableLabels []string, constLabels prometheus.Labels) map[string]*prometheus.Desc {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("notifyd_tcp_"+name, help, variableLabels, constLabels)
	}
	return map[string]*prometheus.Desc{
		"state":           desc("state", "Connection state, see include/net/tcp_states.h."),
		"ca_state":        desc("ca_state", "Loss recovery state machine, see include/net/tcp.h."),
		"retransmits":     desc("retransmits", "Number of timeouts (RTO based retransmissions) at the current sequence."),
		"lost":            desc("lost", "Scoreboard segments marked lost by loss detection heuristics."),
		"total_retrans":   desc("total_retrans", "Total number of segments containing retransmitted data."),
		"unacked":         desc("unacked", "Number of segments between snd.nxt and snd.una."),
		"rtt":             desc("rtt", "Smoothed round trip time, in microseconds."),
		"rttvar":          desc("rttvar", "Round trip time variance, in microseconds."),
		"snd_cwnd":        desc("snd_cwnd", "Congestion window, controlled by the selected congestion control algorithm."),
		"snd_mss":         desc("snd_mss", "Current maximum segment size."),
		"rcv_space":       desc("rcv_space", "Space reserved for the receive queue, typically updated by receiver side auto-tuning."),
		"last_data_recv":  desc("last_data_recv", "Time since the last data segment was received, quantized to jiffies."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector, reading TCP_INFO for every
// tracked connection at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for conn, entry := range c.conns {
		info, err := unix.GetsockoptTCPInfo(entry.fd, unix.IPPROTO_TCP, unix.TCP_INFO)
		if err != nil {
			c.logger.Warn("tcpstats: TCP_INFO unavailable, dropping connection",
				"local", conn.LocalAddr(), "remote", conn.RemoteAddr(), "error", err)
			delete(c.conns, conn)
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.descs["state"], prometheus.GaugeValue, float64(info.State), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["ca_state"], prometheus.GaugeValue, float64(info.Ca_state), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["retransmits"], prometheus.GaugeValue, float64(info.Retransmits), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["lost"], prometheus.GaugeValue, float64(info.Lost), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["total_retrans"], prometheus.GaugeValue, float64(info.Total_retrans), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["unacked"], prometheus.GaugeValue, float64(info.Unacked), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["rtt"], prometheus.GaugeValue, float64(info.Rtt), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["rttvar"], prometheus.GaugeValue, float64(info.Rttvar), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["snd_cwnd"], prometheus.GaugeValue, float64(info.Snd_cwnd), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["snd_mss"], prometheus.GaugeValue, float64(info.Snd_mss), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["rcv_space"], prometheus.GaugeValue, float64(info.Rcv_space), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs["last_data_recv"], prometheus.GaugeValue, float64(info.Last_data_recv), entry.labels...)
	}
}

// Add begins tracking conn, reporting TCP_INFO gauges for it labeled with
// labels (matching the variableLabels order given to NewCollector) on every
// future scrape until Remove is called.
func (c *Collector) Add(conn net.Conn, labels []string) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("tcpstats: connection is not a TCP connection: %T", conn)
	}
	fd := netfd.GetFdFromConn(tcpConn)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = connEntry{fd: fd, labels: labels}
	return nil
}

// Remove stops tracking conn, typically called when the server closes it.
func (c *Collector) Remove(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}

// Tracked reports how many connections are currently tracked, for tests and
// diagnostics.
func (c *Collector) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}
