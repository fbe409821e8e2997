package query

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/mesosphere/spartan-relay/internal/constants"
	"github.com/mesosphere/spartan-relay/internal/router"
)

var consts = constants.Get()

type probeOutcome int

const (
	outcomeFailure probeOutcome = iota
	outcomeReply
)

// probeResult is what a probe worker posts back to its parent FSM. index identifies which of the
// (possibly duplicate) endpoints handed to TakeUpstreams this probe was spawned for, so the FSM can
// track live probes even when the same endpoint was sampled more than once.
type probeResult struct {
	index    int
	endpoint router.UpstreamEndpoint
	reply    []byte
	outcome  probeOutcome
}

// runUDPProbe sends rawQuery as a single datagram to ep and waits for a single reply datagram from
// exactly that address, using a connected UDP socket so the kernel filters out replies from any
// other source. Any error - dial, write, read, the probe-local deadline, or a reply that doesn't
// decode as a DNS message - results in posting a failure result; the probe never posts more than
// once.
func runUDPProbe(ctx context.Context, index int, ep router.UpstreamEndpoint, rawQuery []byte, results chan<- probeResult) {
	result := probeResult{index: index, endpoint: ep, outcome: outcomeFailure}
	defer func() { results <- result }()

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: ep.IP, Port: ep.Port})
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetDeadline(probeDeadline(ctx))

	if _, err := conn.Write(rawQuery); err != nil {
		return
	}

	buf := make([]byte, consts.MaximumViableDNSMessage)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}

	reply := buf[:n]
	if new(dns.Msg).Unpack(reply) != nil {
		return // Undecodable reply: treated as a failure, per the probe's parseability gate.
	}

	result.reply = append([]byte(nil), reply...)
	result.outcome = outcomeReply
}

// runTCPProbe opens a TCP connection to ep, writes rawQuery with a 2-byte big-endian length prefix,
// and reads one length-prefixed reply. Failure semantics mirror runUDPProbe.
func runTCPProbe(ctx context.Context, index int, ep router.UpstreamEndpoint, rawQuery []byte, results chan<- probeResult) {
	result := probeResult{index: index, endpoint: ep, outcome: outcomeFailure}
	defer func() { results <- result }()

	dialer := net.Dialer{Timeout: consts.ProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", (&net.TCPAddr{IP: ep.IP, Port: ep.Port}).String())
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetDeadline(probeDeadline(ctx))

	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(rawQuery)))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return
	}
	if _, err := conn.Write(rawQuery); err != nil {
		return
	}

	if _, err := io.ReadFull(conn, lenPrefix[:]); err != nil {
		return
	}
	replyLen := binary.BigEndian.Uint16(lenPrefix[:])
	reply := make([]byte, replyLen)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return
	}

	if new(dns.Msg).Unpack(reply) != nil {
		return // Undecodable reply: treated as a failure, per the probe's parseability gate.
	}

	result.reply = reply
	result.outcome = outcomeReply
}

func probeDeadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(consts.ProbeTimeout)
}
