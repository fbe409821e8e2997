/*
Package connectiontracker tracks concurrent query activity per remote client for statistical
purposes - originally per-HTTP2-connection, now per-DNS-client-address. The goal is to determine
occupancy and concurrency on a per-listen-address basis.

connectiontracker presents a reporter interface so its output can be periodically logged.

Unlike the HTTP-oriented package this is adapted from, "github.com/miekg/dns".Server does not
expose a ConnState-style callback for its TCP listener, so there is no connection-lifecycle hook to
drive a full connection state machine from. Instead this package tracks active *queries* per remote
address, which is the granularity spartan-relay's query FSM actually has visibility into (the TCP
listener itself is an external collaborator). Typical usage:

	ct := connectiontracker.New("Name")
	ct.Add(remoteAddr)
	defer ct.Done(remoteAddr)

	... time passes and requests occur
	fmt.Println(ct.Report(true))
*/
package connectiontracker

import (
	"sync"
)

type client struct {
	current int
	peak    int
}

type errIx int

const (
	errNoClientForDone errIx = iota // Done() called without a matching Add()
	errArSize
)

type trackerStats struct {
	peakClients int // Peak number of distinct remote addresses seen concurrently active
	peakQueries int // Peak concurrent queries from any single remote address
	errors      [errArSize]int
}

type Tracker struct {
	name string
	mu   sync.Mutex

	clients map[string]*client // Indexed by remote address
	trackerStats
}

// New constructs a tracker object - in particular the map used to track each client key.
func New(name string) *Tracker {
	t := &Tracker{name: name}
	t.clients = make(map[string]*client)

	return t
}

// Add records a new in-flight query from the given remote address key.
func (t *Tracker) Add(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[key]
	if !ok {
		c = &client{}
		t.clients[key] = c
	}
	c.current++
	if c.current > c.peak {
		c.peak = c.current
	}
	if c.peak > t.peakQueries {
		t.peakQueries = c.peak
	}
	if len(t.clients) > t.peakClients {
		t.peakClients = len(t.clients)
	}
}

// Done retires an in-flight query recorded by a matching Add(). The client entry is removed once
// its query count returns to zero so the map does not grow unbounded across the lifetime of the
// listener.
func (t *Tracker) Done(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[key]
	if !ok {
		t.errors[errNoClientForDone]++
		return
	}
	c.current--
	if c.current <= 0 {
		delete(t.clients, key)
	}
}

// ActiveClients returns the number of distinct remote addresses with at least one in-flight query.
func (t *Tracker) ActiveClients() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.clients)
}
