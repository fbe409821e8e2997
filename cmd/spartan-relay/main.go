// listen for inbound DNS queries and race them against multiple upstream resolvers in parallel
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/mesosphere/spartan-relay/internal/config"
	"github.com/mesosphere/spartan-relay/internal/constants"
	"github.com/mesosphere/spartan-relay/internal/health"
	"github.com/mesosphere/spartan-relay/internal/metrics"
	"github.com/mesosphere/spartan-relay/internal/osutil"
	"github.com/mesosphere/spartan-relay/internal/reporter"
	"github.com/mesosphere/spartan-relay/internal/router"
	"github.com/mesosphere/spartan-relay/internal/upstreamstats"
	"github.com/mesosphere/spartan-relay/internal/zonecache"
)

// Program-wide variables
var (
	consts           = constants.Get()
	cfg              *config
	listenTransports = []string{}

	stdout io.Writer // All I/O goes via these writers
	stderr io.Writer

	startTime                = time.Now()
	mainStateMu              sync.Mutex
	mainStarted, mainStopped bool // Record state transitions thru main (used by tests)
	stopChannel              chan os.Signal
	flagSet                  *flag.FlagSet
)

// mainState names the two main-loop transitions tests wait on via isMain.
type mainState int

const (
	Started mainState = iota
	Stopped
)

// isMain reports whether main has reached state s. Reads and writes of mainStarted/mainStopped
// both go through mainStateMu since they are set from the main goroutine and polled from a test
// goroutine.
func isMain(s mainState) bool {
	mainStateMu.Lock()
	defer mainStateMu.Unlock()
	if s == Started {
		return mainStarted
	}
	return mainStopped
}

func setMain(s mainState, v bool) {
	mainStateMu.Lock()
	defer mainStateMu.Unlock()
	if s == Started {
		mainStarted = v
	} else {
		mainStopped = v
	}
}

//////////////////////////////////////////////////////////////////////

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ProxyProgramName, ": ")
	fmt.Fprintln(stderr, args...)

	return 1
}

func stopMain() {
	stopChannel <- syscall.SIGINT
}

//////////////////////////////////////////////////////////////////////
// main wrappers make it easy for test programs
//////////////////////////////////////////////////////////////////////

// mainInit resets everything such that mainExecute() can be called multiple times in one program
// execution. stopChannel is buffered as the reader may disappear if there is a fatal error and
// multiple writers might try to write to the channel and we don't want those writers to stall
// forever.
func mainInit(out io.Writer, err io.Writer) {
	cfg = &config{}
	listenTransports = []string{}
	stdout = out
	stderr = err
	setMain(Started, false)
	setMain(Stopped, false)
	stopChannel = make(chan os.Signal, 4) // All reasonable signals cause us to quit or stats report
	signal.Notify(stopChannel, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGUSR1)
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

func mainExecute(args []string) int {
	flagSet = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	err := parseCommandLine(args)
	if err != nil {
		return 1 // Error already printed by the flag package
	}
	if cfg.help {
		usage(stdout)
		return 0
	}
	if cfg.version {
		fmt.Fprintln(stdout, consts.ProxyProgramName, "Version:", consts.Version)
		return 0
	}

	if cfg.logAll {
		cfg.logClientIn = true
	}

	// Validate transport settings

	if cfg.udp {
		listenTransports = append(listenTransports, consts.DNSUDPTransport)
	}
	if cfg.tcp {
		listenTransports = append(listenTransports, consts.DNSTCPTransport)
	}
	if len(listenTransports) == 0 {
		return fatal("Must have one of --tcp or --udp set")
	}

	var reporters []reporter.Reporter // Keep track of all reportable routines
	var servers []*server             // Keep track of all servers so we can shut them down

	// Load the resolver pools, either from a configured TOML file or the built-in defaults.

	pools := router.Pools{Public: router.DefaultPublicPool}
	zoneCachePath := cfg.zoneCachePath
	if len(cfg.configFile) > 0 {
		c, err := config.Load(cfg.configFile)
		if err != nil {
			return fatal(err)
		}
		var dropped []string
		pools, dropped = c.Pools()
		if len(dropped) > 0 && cfg.verbose {
			fmt.Fprintln(stdout, "Dropped unparseable resolver entries:", strings.Join(dropped, ", "))
		}
		if len(zoneCachePath) == 0 {
			zoneCachePath = c.ZoneCache.Path
		}
	}

	var zc *zonecache.Cache
	if len(zoneCachePath) > 0 {
		zc, err = zonecache.Open(zoneCachePath)
		if err != nil {
			return fatal(err)
		}
		defer zc.Close()
	}

	var rt *router.Router
	if zc != nil {
		rt = router.New(pools, zc)
	} else {
		rt = router.New(pools, nil)
	}

	// Metrics sink, fanned out to the upstream latency/success/failure accounting used by the
	// periodic status report.

	sink, err := metrics.NewGoMetricsSink(consts.ProxyProgramName, cfg.metricsPrometheus, cfg.metricsAddr)
	if err != nil {
		return fatal(err)
	}
	reporters = append(reporters, sink)

	stats := upstreamstats.New()
	reporters = append(reporters, stats)
	composite := &compositeSink{metrics: sink, stats: stats}

	reporters = append(reporters, health.New())

	if cfg.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fatal(err)
		}
		defer agent.Close()
	}

	if cfg.listenAddresses.NArg() == 0 { // Use wildcard if none supplied
		cfg.listenAddresses.Set("")
	}

	// Start CPU profiling now that most error checking is complete

	if len(cfg.cpuprofile) > 0 {
		f, err := os.Create(cfg.cpuprofile)
		if err != nil {
			return fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profile is triggered at the end of the program but we open the output file and
	// hold it open prior to any possible chroot/setuid/setgid action.

	var memProfileFile *os.File
	if len(cfg.memprofile) > 0 {
		memProfileFile, err = os.Create(cfg.memprofile)
		if err != nil {
			return fatal(err)
		}
		defer memProfileFile.Close()
	}

	// Start servers to accept queries and race them against the router's upstreams.

	if cfg.verbose {
		fmt.Fprintln(stdout, consts.ProxyProgramName, consts.Version, "Starting")
	}

	errorChannel := make(chan error, cfg.listenAddresses.NArg()*len(listenTransports)+1)
	wg := &sync.WaitGroup{} // Wait on all servers

	sink.Serve(errorChannel) // No-op unless --metrics-prometheus was passed
	if cfg.verbose && cfg.metricsPrometheus {
		fmt.Fprintln(stdout, "Starting metrics endpoint on", cfg.metricsAddr)
	}

	for _, addr := range cfg.listenAddresses.Args() {
		ip := net.ParseIP(addr) // We have to wrap unadorned ipv6 addresses so we can append port
		if ip != nil && ip.To16() != nil {
			addr = "[" + addr + "]" // It's naked, so wrap it
		}

		// If addr is neither v4addr:port, [v6addr]:port or host:port, append the default port
		if !(strings.LastIndex(addr, ":") > strings.LastIndex(addr, "]")) {
			addr = fmt.Sprintf("%s:%s", addr, consts.DNSDefaultPort)
		}

		for _, transport := range listenTransports {
			s := newServer(stdout, rt, composite, addr, transport)
			s.start(errorChannel, wg)
			if cfg.verbose {
				fmt.Fprintln(stdout, "Starting", s.Name())
			}

			reporters = append(reporters, s)
			servers = append(servers, s)
		}
	}

	// Constrain the process via setuid/setgid/chroot. This is a no-op call if all parameters
	// are empty strings. Unlike an HTTP front-end we don't have to delay here as dns.Server's
	// NotifyStartedFunc only fires once the privileged sockets have been opened.

	err = osutil.Constrain(cfg.setuidName, cfg.setgidName, cfg.chrootDir)
	if err != nil {
		return fatal(err)
	}
	if cfg.verbose {
		fmt.Fprintf(stdout, "Constraints: %s\n", osutil.ConstraintReport())
	}

	// Loop forever giving periodic status reports and checking for a termination event.

	setMain(Started, true) // Tell testers that we're up and running
	nextStatusIn := nextInterval(time.Now(), cfg.statusInterval)

Running:
	for {
		select {
		case s := <-stopChannel:
			if s == syscall.SIGUSR1 {
				statusReport("User1", false, reporters)
				break
			}
			if cfg.verbose {
				fmt.Fprintln(stdout, "\nSignal", s)
			}
			break Running // All signals bar USR1 cause loop exit

		case err := <-errorChannel:
			return fatal(err) // No cleanup if we got a server startup error

		case <-time.After(nextStatusIn):
			if cfg.verbose {
				statusReport("Status", true, reporters)
			}
			nextStatusIn = nextInterval(time.Now(), cfg.statusInterval)
		}
	}

	for _, s := range servers {
		s.stop()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	sink.Shutdown(shutdownCtx) // No-op unless --metrics-prometheus was passed
	cancelShutdown()

	setMain(Stopped, true)
	wg.Wait() // Wait for all servers to shut down

	if cfg.verbose {
		statusReport("Status", true, reporters) // One last report prior to exiting
		fmt.Fprintln(stdout, consts.ProxyProgramName, consts.Version, "Exiting after", uptime())
	}

	// Memory profile is written at the end of the program

	if memProfileFile != nil {
		runtime.GC() // get up-to-date statistics
		err := pprof.WriteHeapProfile(memProfileFile)
		if err != nil {
			return fatal(err)
		}
	}

	return 0
}

// nextInterval calculates the duration to the modulo interval next time. If now is 00:01:17 and
// interval is 30s then return is 13s which is the duration to the next modulo of 00:01:30.
func nextInterval(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

// uptime calculates how long this server has been running and returns a print-friendly and
// granularity-appropriate representation of that duration.
func uptime() string {
	return time.Now().Sub(startTime).Truncate(time.Second).String()
}

// statusReport prints stats about the server and all known reporters
func statusReport(what string, resetCounters bool, reporters []reporter.Reporter) {
	fmt.Fprintln(stdout, "Status Up:", consts.ProxyProgramName, consts.Version, uptime())
	for _, r := range reporters {
		reps := strings.Split(r.Report(resetCounters), "\n")
		for _, s := range reps {
			if len(s) > 0 {
				fmt.Fprintf(stdout, "%s %s: %s\n", what, r.Name(), s)
			}
		}
	}
}

// compositeSink fans every metrics.Sink update out to the armon/go-metrics-backed sink and, for
// the per-upstream success/failure/latency keys the query FSM emits, into upstreamstats as well -
// the FSM itself only knows about the Sink capability, not about upstreamstats' richer per-endpoint
// accounting.
type compositeSink struct {
	metrics metrics.Sink
	stats   *upstreamstats.Stats
}

func (c *compositeSink) Update(keyPath []string, value float64, kind metrics.Kind) {
	c.metrics.Update(keyPath, value, kind)

	if len(keyPath) != 3 || keyPath[0] != "query_fsm" {
		return
	}

	switch keyPath[2] {
	case "latency":
		c.stats.Success(keyPath[1], time.Duration(value)*time.Microsecond)
	case "failures":
		c.stats.Failure(keyPath[1])
	}
}
