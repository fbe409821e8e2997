/*
Package constants provides common values used across all spartan-relay packages. Usage is to call
the global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typically usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ProxyProgramName, "version", consts.Version)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

import "time"

// Constants contains the system-wide constants
type Constants struct {
	ProxyProgramName string
	Version          string
	PackageName      string
	PackageURL       string

	DNSDefaultPort          string // DNS Related constants
	MinimumViableDNSMessage uint   // MsgHdr + one Question with zero length name
	MaximumViableDNSMessage uint   // Largest message we'll attempt to Unpack

	DNSUDPTransport string // Suitable for the "net" package, but just to make sure we're
	DNSTCPTransport string // consistent across the whole package.

	RcodeServfail int // Wire value for a SERVFAIL response code

	MaxProbes int // Cap K on the number of upstreams dispatched per query

	GlobalTimeout time.Duration // Entry into WaitForFirstReply until a winner must be declared
	ProbeTimeout  time.Duration // Per-probe exchange timeout

	RouteLabelMesos   string // Reversed top-level labels recognised by the router
	RouteLabelZK      string
	RouteLabelSpartan string
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set. The main reason for returning a struct is so that callers can
// inspect and/or use packages that introspect - particularly */template packages.
func createReadOnlyConstants() {
	readOnlyConstants = &Constants{
		ProxyProgramName: "spartan-relay",
		Version:          "v0.1.0",
		PackageName:      "Spartan Relay",
		PackageURL:       "https://github.com/mesosphere/spartan-relay",

		DNSDefaultPort:          "53",
		MinimumViableDNSMessage: 16, // A legit binary DNS Message *cannot* be shorter than this
		MaximumViableDNSMessage: 65535,

		DNSUDPTransport: "udp",
		DNSTCPTransport: "tcp",

		RcodeServfail: 2,

		MaxProbes:     2,
		GlobalTimeout: 5 * time.Second,
		ProbeTimeout:  5 * time.Second,

		RouteLabelMesos:   "mesos",
		RouteLabelZK:      "zk",
		RouteLabelSpartan: "spartan",
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constant struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}
