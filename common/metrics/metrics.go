package metrics

import (
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	tallyprom "github.com/uber-go/tally/prometheus"
	tallystatsd "github.com/uber-go/tally/statsd"
)

// Config holds the metrics backend configuration.
type Config struct {
	Prometheus *prometheusConfig `yaml:"prometheus"`
	Statsd     *statsdConfig     `yaml:"statsd"`
}

type prometheusConfig struct {
	Enable bool `yaml:"enable"`
}

type statsdConfig struct {
	Enable   bool   `yaml:"enable"`
	Endpoint string `yaml:"endpoint"`
}

// InitMetricScope initializes a root scope and its closer, with a http
// server mux exposing /metrics (when prometheus is enabled) and /health.
func InitMetricScope(
	cfg *Config,
	rootMetricScope string,
	metricFlushInterval time.Duration) (tally.Scope, io.Closer, *nethttp.ServeMux) {

	mux := nethttp.NewServeMux()
	var reporter tally.StatsReporter
	var promReporter tallyprom.Reporter
	metricSeparator := "."
	if cfg != nil && cfg.Prometheus != nil && cfg.Prometheus.Enable {
		// tally panics on "-" in scope names.
		rootMetricScope = strings.Replace(rootMetricScope, "-", "_", -1)
		metricSeparator = "_"
		promReporter = tallyprom.NewReporter(tallyprom.Options{})
	} else if cfg != nil && cfg.Statsd != nil && cfg.Statsd.Enable {
		log.Infof("Metrics configured with statsd endpoint %s", cfg.Statsd.Endpoint)
		c, err := statsd.NewClient(cfg.Statsd.Endpoint, "")
		if err != nil {
			log.Fatalf("Unable to setup Statsd client: %v", err)
		}
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	} else {
		log.Warn("No metrics backends configured, using the statsd.NoopClient")
		c, _ := statsd.NewNoopClient()
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	}

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	scopeOptions := tally.ScopeOptions{
		Prefix:    rootMetricScope,
		Tags:      map[string]string{},
		Separator: metricSeparator,
	}
	if promReporter != nil {
		// The prometheus reporter is cached; it also serves /metrics.
		scopeOptions.CachedReporter = promReporter
		mux.Handle("/metrics", promReporter.HTTPHandler())
	} else {
		scopeOptions.Reporter = reporter
	}

	metricScope, scopeCloser := tally.NewRootScope(scopeOptions, metricFlushInterval)
	return metricScope, scopeCloser, mux
}
