/*
Package router maps the question section of an inbound query to an ordered list of upstream
resolver endpoints. It owns no network I/O; it is consulted once per query by the query FSM and its
output is immediately handed to TakeUpstreams for probe-fanout sampling.

Routing is suffix based: a reversed, dot-split label sequence is matched on its top label against the
well-known service-discovery suffixes. Anything that doesn't match falls through to the zone-cache
collaborator, which recognizes locally-authoritative names that don't carry one of those suffixes.
*/
package router

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/mesosphere/spartan-relay/internal/constants"
)

var consts = constants.Get()

// UpstreamEndpoint is an IPv4 address and a UDP-or-TCP port. Equality is structural - two endpoints
// with the same IP and port are indistinguishable to the router and the query FSM.
type UpstreamEndpoint struct {
	IP   net.IP
	Port int
}

// String renders the endpoint as host:port, also used as the endpoint's metrics key.
func (e UpstreamEndpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP.String(), e.Port)
}

// Key is an alias for String used where the intent is a map/comparison key rather than display text.
func (e UpstreamEndpoint) Key() string {
	return e.String()
}

// ParseEndpoint parses a "host" or "host:port" string into a normalized UpstreamEndpoint. The host
// must be a parseable IPv4 address; an unparseable entry returns ok=false so callers can drop it
// silently, per the router's error-handling contract.
func ParseEndpoint(raw string) (ep UpstreamEndpoint, ok bool) {
	host := raw
	port := 0
	if h, p, err := net.SplitHostPort(raw); err == nil {
		host = h
		n, err := strconv.Atoi(p)
		if err != nil {
			return UpstreamEndpoint{}, false
		}
		port = n
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return UpstreamEndpoint{}, false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return UpstreamEndpoint{}, false
	}

	return NormalizeEndpoint(UpstreamEndpoint{IP: ip4, Port: port}), true
}

// NormalizeEndpoint defaults a missing port to 53 and collapses the IP to its 4-byte form.
// Normalization is idempotent: NormalizeEndpoint(NormalizeEndpoint(x)) == NormalizeEndpoint(x).
func NormalizeEndpoint(ep UpstreamEndpoint) UpstreamEndpoint {
	if ip4 := ep.IP.To4(); ip4 != nil {
		ep.IP = ip4
	}
	if ep.Port == 0 {
		ep.Port = 53
	}
	return ep
}

// DefaultPublicPool is used whenever no public pool is configured. The triplicated entries are
// intentional: they weight TakeUpstreams' sampling towards 8.8.8.8.
var DefaultPublicPool = buildDefaultPublicPool()

func buildDefaultPublicPool() []UpstreamEndpoint {
	google, _ := ParseEndpoint("8.8.8.8:53")
	level3, _ := ParseEndpoint("4.2.2.1:53")
	return []UpstreamEndpoint{google, level3, google, level3, google}
}

// ZoneCache is the routing hint collaborator for names that don't carry one of the well-known
// suffixes. Any non-found outcome (including an error) is treated as not-found by the router.
type ZoneCache interface {
	GetAuthority(name string) bool
}

// Pools holds the three resolver pools consulted by Route. Spartan serves both the "zk" and
// "spartan" suffixes as well as zone-cache hits, matching the source's shared authoritative-zone
// pool.
type Pools struct {
	Mesos   []UpstreamEndpoint
	Spartan []UpstreamEndpoint
	Public  []UpstreamEndpoint
}

// Router dispatches questions to Pools, consulting ZoneCache for the fallback case.
type Router struct {
	pools     Pools
	zoneCache ZoneCache
}

// New constructs a Router. zoneCache may be nil, in which case every non-suffix-matched name falls
// through to the public pool.
func New(pools Pools, zoneCache ZoneCache) *Router {
	return &Router{pools: pools, zoneCache: zoneCache}
}

// Route maps the first question in questions to an ordered upstream list, honoring duplicates. It
// returns the number of extra questions ignored (len(questions)-1, or zero). An empty or nil
// questions slice yields an empty result with zero ignored.
func (r *Router) Route(questions []dns.Question) ([]UpstreamEndpoint, int) {
	if len(questions) == 0 {
		return nil, 0
	}

	ignored := 0
	if len(questions) > 1 {
		ignored = len(questions) - 1
	}

	name := strings.ToLower(strings.TrimSuffix(questions[0].Name, "."))
	labels := strings.Split(name, ".")
	reverseLabels(labels)

	top := ""
	if len(labels) > 0 {
		top = labels[0]
	}

	switch top {
	case consts.RouteLabelMesos:
		return copyPool(r.pools.Mesos), ignored
	case consts.RouteLabelZK, consts.RouteLabelSpartan:
		return copyPool(r.pools.Spartan), ignored
	default:
		if r.zoneCache != nil && r.zoneCache.GetAuthority(questions[0].Name) {
			return copyPool(r.pools.Spartan), ignored
		}
		return copyPool(r.pools.Public), ignored
	}
}

func reverseLabels(labels []string) {
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
}

func copyPool(pool []UpstreamEndpoint) []UpstreamEndpoint {
	if len(pool) == 0 {
		return nil
	}
	out := make([]UpstreamEndpoint, len(pool))
	copy(out, pool)
	return out
}

// MaxProbes bounds the number of upstreams TakeUpstreams will ever hand to the query FSM. It is
// consts.MaxProbes under another name so callers outside internal/constants don't need to import
// that package just to read this one value.
var MaxProbes = consts.MaxProbes

// TakeUpstreams implements the probe selection policy: if len(endpoints) <= MaxProbes, use all of
// them; otherwise sample MaxProbes elements with replacement using uniform integer selection.
// Duplicates are preserved - not deduplicated - since they are used to weight the sampling.
func TakeUpstreams(endpoints []UpstreamEndpoint) []UpstreamEndpoint {
	if len(endpoints) <= MaxProbes {
		out := make([]UpstreamEndpoint, len(endpoints))
		copy(out, endpoints)
		return out
	}

	out := make([]UpstreamEndpoint, MaxProbes)
	for i := range out {
		out[i] = endpoints[rand.Intn(len(endpoints))]
	}
	return out
}
