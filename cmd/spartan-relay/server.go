package main

/*

This module is the core of the relay server. A dns.Server is started per listen-address/transport
pair; every inbound query is handed to the query FSM (internal/query) which owns the parallel
upstream dispatch, winner selection, and reply delivery described by the rest of this repository. The
server itself is a thin adapter: it decodes nothing and retries nothing, it only counts concurrent
queries for reporting purposes and starts a fire-and-forget FSM per ServeDNS call.

*/

import (
	"fmt"
	"io"
	"sync"

	"github.com/mesosphere/spartan-relay/internal/concurrencytracker"
	"github.com/mesosphere/spartan-relay/internal/connectiontracker"
	"github.com/mesosphere/spartan-relay/internal/dnsutil"
	"github.com/mesosphere/spartan-relay/internal/metrics"
	"github.com/mesosphere/spartan-relay/internal/query"
	"github.com/mesosphere/spartan-relay/internal/router"

	"github.com/miekg/dns"
)

type server struct {
	stdout        io.Writer
	router        *router.Router
	sink          metrics.Sink
	listenAddress string
	transport     string // One of listenTransports
	server        *dns.Server
	ct            *connectiontracker.Tracker
	cct           concurrencytracker.Counter // Peak count of query FSMs in flight on this listener

	mu         sync.Mutex // Protects queryCount - everything above is read-only or self-protected
	queryCount int
}

func newServer(stdout io.Writer, rt *router.Router, sink metrics.Sink, listenAddress, transport string) *server {
	return &server{
		stdout:        stdout,
		router:        rt,
		sink:          sink,
		listenAddress: listenAddress,
		transport:     transport,
		ct:            connectiontracker.New(listenAddress + "/" + transport),
	}
}

// start starts up the dns server and writes to errorChan at server exit. Use the server's
// NotifyStartedFunc capability to actually wait until the socket is opened. That way we don't have
// to fudge a setuid delay.
func (t *server) start(errorChan chan error, wg *sync.WaitGroup) {
	var notifyWG sync.WaitGroup
	var once sync.Once

	notifyWG.Add(1)
	t.server = &dns.Server{Addr: t.listenAddress, Net: t.transport, Handler: t, NotifyStartedFunc: func() {
		once.Do(func() { notifyWG.Done() })
	}}

	wg.Add(1) // Add to caller's waitGroup
	go func() {
		errorChan <- t.server.ListenAndServe()
		once.Do(func() { notifyWG.Done() })
		wg.Done()
	}()
	notifyWG.Wait() // Wait for dns.Server notify before returning to say server is listening (or failed)
}

// ServeDNS is called once per query in a newly created go-routine. It re-packs the already-decoded
// message back to wire bytes and starts a query FSM against it; the FSM does its own decode so that
// the client adapter boundary (this function) only ever deals in a ReplyHandle and raw bytes.
func (t *server) ServeDNS(writer dns.ResponseWriter, req *dns.Msg) {
	remote := writer.RemoteAddr().String()
	t.ct.Add(remote)
	defer t.ct.Done(remote)

	if cfg.logClientIn {
		fmt.Fprintln(t.stdout, "C:"+remote+":"+dnsutil.CompactMsgString(req))
	}

	raw, err := req.Pack()
	if err != nil {
		return // Can't even re-encode what dns.Server already decoded - nothing sensible to do
	}

	kind := query.UDP
	if t.transport == consts.DNSTCPTransport {
		kind = query.TCP
	}

	handle := query.NewReplyHandle(writer, kind)
	query.Start(handle, raw, t.router, t.sink, &t.cct)

	t.mu.Lock()
	t.queryCount++
	t.mu.Unlock()
}

// stop performs an orderly shutdown of listen sockets.
func (t *server) stop() {
	if t.server != nil {
		t.server.Shutdown()
	}
}
