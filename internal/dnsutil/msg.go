/*
Package dnsutil provides small helper functions for manipulating "github.com/miekg/dns.Msg"
messages and printing compact, log-friendly representations of them.
*/
package dnsutil

import (
	"github.com/mesosphere/spartan-relay/internal/constants"

	"github.com/miekg/dns"
)

var (
	consts = constants.Get()
)

// ServFail synthesizes a SERVFAIL response for req: the id, flags (other than rcode and the QR
// response bit, which is set) and question section are left intact, the answer/authority/additional
// sections are cleared and the response-code is overwritten with SERVFAIL.
//
// req is not mutated; a new *dns.Msg is returned so the caller's original request, which is treated
// as read-only once decoded, is never touched.
func ServFail(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.MsgHdr = req.MsgHdr
	resp.MsgHdr.Response = true
	resp.MsgHdr.Rcode = consts.RcodeServfail
	resp.Question = append([]dns.Question{}, req.Question...)

	return resp
}

// PackServFail synthesizes a SERVFAIL response for req and encodes it to wire format. A nil slice
// is returned on the (essentially impossible) case that the synthesized message fails to pack.
func PackServFail(req *dns.Msg) []byte {
	wire, err := ServFail(req).Pack()
	if err != nil {
		return nil
	}
	return wire
}
