package main

import (
	"time"

	"github.com/mesosphere/spartan-relay/internal/flagutil"
)

type config struct {
	gops    bool
	help    bool
	tcp     bool // Listen on TCP
	udp     bool // Listen on UDP
	verbose bool
	version bool

	listenAddresses flagutil.StringValue // Listen address for inbound DNS queries

	configFile    string // TOML resolver-pool / zone-cache configuration
	zoneCachePath string // Overrides the config file's zone_cache.path, if set

	statusInterval time.Duration

	metricsPrometheus bool   // Export metrics via a Prometheus sink in addition to the in-mem reporter
	metricsAddr       string // Listen address for the /metrics scrape endpoint

	logAll      bool // Turns on all other log options
	logClientIn bool // Print the DNS query arriving from the client

	cpuprofile, memprofile string

	setuidName, setgidName, chrootDir string // Process constraint settings
}
