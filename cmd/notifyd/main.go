package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/infodancer/campusmaild/internal/config"
	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/logging"
	"github.com/infodancer/campusmaild/internal/metrics"
	"github.com/infodancer/campusmaild/internal/notifysrv"
	"github.com/infodancer/campusmaild/internal/notifytcp"
	"github.com/infodancer/campusmaild/internal/server"
	"github.com/infodancer/campusmaild/internal/sticky"
	"github.com/infodancer/campusmaild/internal/tcpstats"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	// Set up metrics collector.
	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	// Open the sticky-notice store.
	store, err := sticky.Open(cfg.Sticky.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening sticky store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Load the name-directory backend used to validate sign-ons.
	directory, err := dnd.OpenFile(cfg.Directory.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading directory file: %v\n", err)
		os.Exit(1)
	}
	validatorFactory := notifytcp.ValidatorFactory(directory.NewValidator)

	var adminUID *int
	if cfg.AdminUID != 0 {
		adminUID = &cfg.AdminUID
	}

	// Bind the UDP socket and start the reliable-datagram notification server.
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.UDP.Address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving udp address: %v\n", err)
		os.Exit(1)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error binding udp socket: %v\n", err)
		os.Exit(1)
	}
	defer udpConn.Close()

	udpServer := notifysrv.New(udpConn, store, cfg.UDP.RetransDuration(), cfg.UDP.MaxPacketAgeDuration(), cfg.UDP.MaxClientAgeDuration(), collector, logger)

	// Wire a TCP_INFO collector into the TCP control listeners.
	tcpInfo := tcpstats.NewCollector([]string{"listener"}, prometheus.Labels{"service": "notifyd"}, logger)
	if cfg.Metrics.Enabled {
		prometheus.DefaultRegisterer.MustRegister(tcpInfo)
	}

	addrs := make([]string, len(cfg.TCP.Listeners))
	for i, l := range cfg.TCP.Listeners {
		addrs[i] = l.Address
	}

	srv, err := server.New(server.Config{
		Addresses:      addrs,
		IdleTimeout:    cfg.Timeouts.IdleTimeout(),
		CommandTimeout: cfg.Timeouts.CommandTimeout(),
		MaxConnections: cfg.Limits.MaxConnections,
		Logger:         logger,
		Tracker:        tcpInfo,
		TrackerLabels:  []string{"notifytcp"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating server: %v\n", err)
		os.Exit(1)
	}
	srv.SetHandler(notifytcp.Handler(store, udpServer, adminUID, validatorFactory, collector))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	go func() {
		if err := config.Watch(ctx, flags.ConfigPath, func(config.Config) {
			logger.Info("configuration file changed, restart required to apply")
		}); err != nil && err != context.Canceled {
			logger.Debug("config watch unavailable", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	udpServer.Start(ctx)
	defer udpServer.Stop()

	logger.Info("starting notifyd", "tcp_listeners", len(addrs), "udp_address", cfg.UDP.Address)

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("notifyd stopped")
}
