package main

import (
	"fmt"
	"io"
	"text/template"
	"time"
)

// The "flag" package is not tty aware so we've arbitrarily picked 100 columns as a conservative tty
// width for the usage output.

const usageMessageTemplate = `
NAME
          {{.ProxyProgramName}} -- a Mesos-DNS-aware relay for parallel upstream resolution

SYNOPSIS
          {{.ProxyProgramName}} [options]

DESCRIPTION
          {{.ProxyProgramName}} accepts DNS queries on UDP and TCP and, for every query, races it in
          parallel against up to {{.MaxProbes}} upstream resolvers, returning whichever reply arrives
          first to the client. Names under the "mesos." and "zk."/"spartan." suffixes - plus any name
          recognised by an optional zone cache as locally authoritative - are routed to the Mesos DNS
          and Spartan resolver pools respectively; every other name falls through to a public resolver
          pool.

          This "send to several, take the first answer" strategy trades a small amount of duplicate
          upstream load for materially lower tail latency: a single slow or unreachable resolver no
          longer dictates how long a client waits for an answer.

          {{.ProxyProgramName}} reads its resolver pools and zone-cache path, if any, from a TOML
          configuration file. The wildcard interface address and default DNS port are used if no
          listen addresses are specified.

CONFIGURATION
          The -c option names a TOML file with [resolvers] and, optionally, [zone_cache] sections:

              [resolvers]
              mesos   = ["127.0.0.1:8053"]
              spartan = ["198.51.100.10:53", "198.51.100.11:53"]
              public  = ["8.8.8.8:53", "4.2.2.1:53"]

              [zone_cache]
              path = "/var/lib/{{.ProxyProgramName}}/zones.db"

          If no public pool is configured, a small built-in set of well-known public resolvers is
          used instead. An absent [zone_cache] section disables authoritative-name recognition for
          names outside the "mesos"/"zk"/"spartan" suffixes - they simply fall through to the public
          pool.

METRICS
          Per-upstream and aggregate counters are recorded via an in-process metrics sink and emitted
          in the periodic status report (-i) and on SIGUSR1. Pass --metrics-prometheus to additionally
          expose these counters through a Prometheus-compatible sink for scraping, served over HTTP at
          --metrics-addr (default :9153) on the "/metrics" path.

OPTIONS
          [-hv]
          [-A listen Address[:port] ...] [--tcp] [--udp]

          [-c TOML resolver-pool config path]
          [--zone-cache path]
          [-i status-report-interval]

          [--metrics-prometheus] [--metrics-addr address[:port]]

          [--log-client-in]
          [--log-all]

          [--gops] [--cpu-profile file] [--mem-profile file]

          [--user userName] [--group groupName] [--chroot directory]

          [--version]

`

//////////////////////////////////////////////////////////////////////

func usage(out io.Writer) {
	tmpl, err := template.New("usage").Parse(usageMessageTemplate)
	if err != nil {
		panic(err) // We've messed up our template
	}
	err = tmpl.Execute(out, consts)
	if err != nil {
		panic(err) // We've messed up our template
	}
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
	fmt.Fprintln(out, "\nVersion:", consts.Version)
}

// parseCommandLine sets up the flags-to-config mapping and parses the supplied command line
// arguments. It starts from scratch each time to make it easier for test wrappers to use.
func parseCommandLine(args []string) error {
	flagSet.BoolVar(&cfg.help, "h", false, "Print usage message to Stdout then exit(0)")
	flagSet.BoolVar(&cfg.verbose, "v", false, "Verbose status and stats - otherwise only errors are output")

	flagSet.Var(&cfg.listenAddresses, "A",
		"Listen `address` for inbound DNS queries (default :"+consts.DNSDefaultPort+")")

	flagSet.BoolVar(&cfg.tcp, "tcp", true, "Listen for TCP DNS Queries")
	flagSet.BoolVar(&cfg.udp, "udp", true, "Listen for UDP DNS Queries")

	flagSet.StringVar(&cfg.configFile, "c", "", "`path` to TOML resolver-pool configuration")
	flagSet.StringVar(&cfg.zoneCachePath, "zone-cache", "",
		"`path` to the bbolt zone-cache database (overrides the config file's zone_cache.path)")
	flagSet.DurationVar(&cfg.statusInterval, "i", time.Minute*15, "Periodic Status Report `interval`")

	flagSet.BoolVar(&cfg.metricsPrometheus, "metrics-prometheus", false,
		"Additionally export metrics via a Prometheus sink")
	flagSet.StringVar(&cfg.metricsAddr, "metrics-addr", ":9153",
		"Listen `address` for the /metrics scrape endpoint (only used with --metrics-prometheus)")

	flagSet.BoolVar(&cfg.logAll, "log-all", false, "Turns on all other --log-* options")
	flagSet.BoolVar(&cfg.logClientIn, "log-client-in", false, "Compact print of query arriving from client")

	// gops go pprof settings

	flagSet.BoolVar(&cfg.gops, "gops", false, "Start github.com/google/gops agent")
	flagSet.StringVar(&cfg.cpuprofile, "cpu-profile", "", "write cpu profile to `file`")
	flagSet.StringVar(&cfg.memprofile, "mem-profile", "", "write mem profile to `file`")

	// Process Constraint parameters

	flagSet.StringVar(&cfg.setuidName, "user", "", "setuid `username` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.setgidName, "group", "", "setgid `groupname` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.chrootDir, "chroot", "", "chroot `directory` to constrain process after start-up")

	flagSet.BoolVar(&cfg.version, "version", false, "Print version and exit")

	return flagSet.Parse(args[1:])
}
