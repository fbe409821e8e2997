package dnsutil

import (
	"testing"

	"github.com/miekg/dns"
)

func TestServFail(t *testing.T) {
	req := &dns.Msg{}
	req.MsgHdr.Id = 4321
	req.MsgHdr.RecursionDesired = true
	req.Question = append(req.Question, dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET})

	resp := ServFail(req)
	if resp.MsgHdr.Id != req.MsgHdr.Id {
		t.Error("ServFail changed the request Id. Want", req.MsgHdr.Id, "got", resp.MsgHdr.Id)
	}
	if !resp.MsgHdr.Response {
		t.Error("ServFail did not set the Response flag")
	}
	if !resp.MsgHdr.RecursionDesired {
		t.Error("ServFail did not preserve RecursionDesired")
	}
	if resp.MsgHdr.Rcode != 2 {
		t.Error("ServFail rcode should be 2 (SERVFAIL), not", resp.MsgHdr.Rcode)
	}
	if len(resp.Question) != 1 || resp.Question[0].Name != "example.com." {
		t.Error("ServFail did not echo the question section", resp.Question)
	}

	// Confirm the original request is untouched.
	if req.MsgHdr.Response {
		t.Error("ServFail mutated the original request's Response flag")
	}
	if req.MsgHdr.Rcode != 0 {
		t.Error("ServFail mutated the original request's Rcode")
	}
}

func TestServFailPackable(t *testing.T) {
	req := &dns.Msg{}
	req.MsgHdr.Id = 1
	req.Question = append(req.Question, dns.Question{Name: "foo.mesos.", Qtype: dns.TypeA, Qclass: dns.ClassINET})

	resp := ServFail(req)
	wire, err := resp.Pack()
	if err != nil {
		t.Fatal("SERVFAIL response should be packable", err)
	}

	redecoded := &dns.Msg{}
	if err := redecoded.Unpack(wire); err != nil {
		t.Fatal("packed SERVFAIL response should be unpackable", err)
	}
	if redecoded.MsgHdr.Rcode != 2 {
		t.Error("round-tripped SERVFAIL should still carry rcode 2, got", redecoded.MsgHdr.Rcode)
	}
}
