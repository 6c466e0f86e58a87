package nodes

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// SRVScheme prefixes node hosts that resolve through DNS SRV records
// instead of naming an address directly.
const SRVScheme = "dnssrv://"

// DefaultDNSServer is the local stub resolver.
const DefaultDNSServer = "127.0.0.53:53"

// Resolver looks up node addresses through DNS SRV records.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns a resolver querying the given DNS server, falling
// back to the local stub resolver when none is configured.
func NewResolver(server string) *Resolver {
	if server == "" {
		server = DefaultDNSServer
	}
	return &Resolver{server: server, client: new(dns.Client)}
}

// ResolveSRV resolves a service name to the target host and port of the
// first SRV answer.
func (r *Resolver) ResolveSRV(name string) (string, int, error) {
	msg := new(dns.Msg)
	msg.Id = dns.Id()
	msg.RecursionDesired = true
	msg.Question = make([]dns.Question, 1)
	msg.Question[0] = dns.Question{Name: dns.Fqdn(name), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}

	in, _, err := r.client.Exchange(msg, r.server)
	if err != nil {
		return "", 0, fmt.Errorf("could not resolve %s: %w", name, err)
	}

	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			return strings.TrimSuffix(srv.Target, "."), int(srv.Port), nil
		}
	}

	return "", 0, fmt.Errorf("no SRV records for %s", name)
}
