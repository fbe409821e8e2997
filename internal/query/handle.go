/*
Package query is the per-client-query state machine: it decodes one raw query, consults the router
for an upstream list, races probes against that list, and delivers the first successful reply (or a
synthesized SERVFAIL, or silence) back through a ReplyHandle. The FSM is fire-and-forget from its
caller's point of view - Start spawns it and returns immediately; the only observable output is
exactly one call to ReplyHandle.Deliver, or none at all.
*/
package query

import (
	"github.com/miekg/dns"
)

// Transport names the wire transport a ReplyHandle (and therefore its probes) are using.
type Transport string

const (
	UDP Transport = "udp"
	TCP Transport = "tcp"
)

// ReplyHandle hides whether delivery is a UDP datagram send or a length-prefixed TCP stream write
// behind a single capability: Deliver. dns.ResponseWriter already exposes both as Write([]byte), so
// this is a thin adapter rather than a hand-rolled transport layer - the listener itself remains an
// external collaborator.
type ReplyHandle struct {
	writer    dns.ResponseWriter
	transport Transport
}

// NewReplyHandle wraps writer, which must have been obtained from a dns.Server listening on
// transport (udp or tcp).
func NewReplyHandle(writer dns.ResponseWriter, transport Transport) *ReplyHandle {
	return &ReplyHandle{writer: writer, transport: transport}
}

// Transport reports which wire transport this handle, and therefore the probes spawned against it,
// should use.
func (h *ReplyHandle) Transport() Transport {
	return h.transport
}

// Deliver forwards reply verbatim to the client. Errors are not surfaced: a client that has
// disappeared (closed TCP connection, unreachable UDP peer) is accepted as fire-and-forget per the
// reply-delivery-failure error case.
func (h *ReplyHandle) Deliver(reply []byte) {
	_, _ = h.writer.Write(reply)
}
