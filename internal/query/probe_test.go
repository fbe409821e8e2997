package query

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/mesosphere/spartan-relay/internal/router"
)

func udpEndpoint(t *testing.T, addr *net.UDPAddr) router.UpstreamEndpoint {
	t.Helper()
	return router.UpstreamEndpoint{IP: addr.IP, Port: addr.Port}
}

// validReply packs a minimal, well-formed DNS message - a stand-in for an upstream's reply bytes
// that must pass the probe's decode gate.
func validReply(t *testing.T) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn("example.com"), dns.TypeA)
	wire, err := m.Pack()
	if err != nil {
		t.Fatal(err)
	}
	return wire
}

// startEchoUDP answers every datagram it receives with reply.
func startEchoUDP(t *testing.T, reply []byte) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_ = n
			conn.WriteToUDP(reply, raddr)
		}
	}()

	return conn
}

func TestRunUDPProbeSuccess(t *testing.T) {
	reply := validReply(t)
	conn := startEchoUDP(t, reply)
	ep := udpEndpoint(t, conn.LocalAddr().(*net.UDPAddr))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results := make(chan probeResult, 1)
	runUDPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeReply {
		t.Fatal("expected a reply outcome")
	}
	if string(res.reply) != string(reply) {
		t.Error("expected the packed reply verbatim, got", res.reply)
	}
}

// A datagram that doesn't decode as a DNS message must be treated as a failure, not a reply - per
// spec the probe's reply outcome requires successfully parseable bytes.
func TestRunUDPProbeUndecodableReplyIsFailure(t *testing.T) {
	conn := startEchoUDP(t, []byte("pong"))
	ep := udpEndpoint(t, conn.LocalAddr().(*net.UDPAddr))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results := make(chan probeResult, 1)
	runUDPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeFailure {
		t.Error("expected an undecodable reply to be reported as a failure")
	}
	if res.reply != nil {
		t.Error("expected no reply bytes on a failure outcome")
	}
}

func TestRunUDPProbeNoServer(t *testing.T) {
	ep := router.UpstreamEndpoint{IP: net.ParseIP("127.0.0.1"), Port: 1} // Nothing listens on port 1

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results := make(chan probeResult, 1)
	runUDPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeFailure {
		t.Error("expected a failure outcome against an unreachable port")
	}
}

// startEchoTCP answers every length-prefixed request it receives with reply, length-prefixed.
func startEchoTCP(t *testing.T, reply []byte) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				var lenBuf [2]byte
				if _, err := readFull(c, lenBuf[:]); err != nil {
					return
				}
				n := binary.BigEndian.Uint16(lenBuf[:])
				buf := make([]byte, n)
				if _, err := readFull(c, buf); err != nil {
					return
				}

				var out [2]byte
				binary.BigEndian.PutUint16(out[:], uint16(len(reply)))
				c.Write(out[:])
				c.Write(reply)
			}(conn)
		}
	}()

	return ln
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestRunTCPProbeSuccess(t *testing.T) {
	reply := validReply(t)
	ln := startEchoTCP(t, reply)
	addr := ln.Addr().(*net.TCPAddr)
	ep := router.UpstreamEndpoint{IP: addr.IP, Port: addr.Port}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results := make(chan probeResult, 1)
	runTCPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeReply {
		t.Fatal("expected a reply outcome")
	}
	if string(res.reply) != string(reply) {
		t.Error("expected the packed reply verbatim, got", res.reply)
	}
}

// A length-prefixed reply that doesn't decode as a DNS message must be treated as a failure.
func TestRunTCPProbeUndecodableReplyIsFailure(t *testing.T) {
	ln := startEchoTCP(t, []byte("pong"))
	addr := ln.Addr().(*net.TCPAddr)
	ep := router.UpstreamEndpoint{IP: addr.IP, Port: addr.Port}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results := make(chan probeResult, 1)
	runTCPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeFailure {
		t.Error("expected an undecodable reply to be reported as a failure")
	}
}

func TestRunTCPProbeConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // Nothing listens here anymore

	ep := router.UpstreamEndpoint{IP: addr.IP, Port: addr.Port}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	results := make(chan probeResult, 1)
	runTCPProbe(ctx, 0, ep, []byte("ping"), results)

	res := <-results
	if res.outcome != outcomeFailure {
		t.Error("expected a failure outcome against a closed port")
	}
}
