package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/zmyer/mesos/allocator"
	"github.com/zmyer/mesos/common/config"
	"github.com/zmyer/mesos/common/metrics"
	"github.com/zmyer/mesos/resources"
)

const (
	rootMetricScope    = "allocator"
	metricFlushPeriod  = 1 * time.Second
	defaultHTTPPort    = 5292
	shutdownLogMessage = "Shutting down allocatord"
)

var (
	version string
	app     = kingpin.New("allocatord", "Hierarchical DRF resource allocator")

	debug = app.Flag(
		"debug", "enable debug mode (debug-level logging)").
		Short('d').
		Default("false").
		Envar("ENABLE_DEBUG_LOGGING").
		Bool()

	cfgFiles = app.Flag(
		"config",
		"YAML config files (can be provided multiple times to merge configs)").
		Short('c').
		Required().
		ExistingFiles()

	httpPort = app.Flag(
		"http-port", "HTTP port for metrics and health (http_port override) (set $HTTP_PORT to override)").
		Envar("HTTP_PORT").
		Int()

	allocationInterval = app.Flag(
		"allocation-interval",
		"Batch allocation period (allocator.allocation_interval override)").
		Envar("ALLOCATION_INTERVAL").
		Duration()
)

func main() {
	app.Version(version)
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log.SetFormatter(&log.JSONFormatter{})

	initialLevel := log.InfoLevel
	if *debug {
		initialLevel = log.DebugLevel
	}
	log.SetLevel(initialLevel)

	log.WithField("files", *cfgFiles).Info("Loading allocator config")
	var cfg Config
	if err := config.Parse(&cfg, *cfgFiles...); err != nil {
		log.WithField("error", err).Fatal("Cannot parse yaml config")
	}

	// now, override any CLI flags in the loaded config
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if *allocationInterval != 0 {
		cfg.Allocator.AllocationInterval = *allocationInterval
	}
	log.WithField("config", cfg).Info("Loaded allocator config")

	rootScope, scopeCloser, mux := metrics.InitMetricScope(
		&cfg.Metrics,
		rootMetricScope,
		metricFlushPeriod,
	)
	defer scopeCloser.Close()
	rootScope.Counter("boot").Inc(1)

	alloc := allocator.New(allocator.Options{
		Config: cfg.Allocator,
		Scope:  rootScope.SubScope("mesos"),
		OfferCallback: func(
			frameworkID allocator.FrameworkID,
			offers map[allocator.AgentID]resources.Bundle) {
			for agentID, res := range offers {
				log.WithFields(log.Fields{
					"framework": frameworkID,
					"agent":     agentID,
					"resources": res.String(),
				}).Info("Offering resources")
			}
		},
		InverseOfferCallback: func(
			frameworkID allocator.FrameworkID,
			offers map[allocator.AgentID]allocator.InverseOffer) {
			for agentID := range offers {
				log.WithFields(log.Fields{
					"framework": frameworkID,
					"agent":     agentID,
				}).Info("Requesting resources back for maintenance")
			}
		},
	})

	if err := alloc.Start(); err != nil {
		log.WithError(err).Fatal("Cannot start allocator")
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.WithField("addr", addr).Info("Serving metrics and health")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Fatal("HTTP server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.WithField("signal", sig.String()).Info(shutdownLogMessage)
	if err := alloc.Stop(); err != nil {
		log.WithError(err).Error("Error stopping allocator")
	}
}
