// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lookup

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
)

const (
	// VerdictListed prefixes the verdict for an address found on the
	// configured blocklist. The listing record is appended in parentheses
	VerdictListed = "listed"

	// VerdictClean is the verdict for an address the blocklist does not know
	VerdictClean = "clean"

	resolvConfPath = "/etc/resolv.conf"
)

// dnsblVerdict consults the configured blocklist zone for an IPv4 address.
// The check is best effort: hostnames, IPv6 addresses, and query failures
// all yield an empty verdict rather than an error
func (e *Executor) dnsblVerdict(address string) string {
	name, ok := dnsblName(address, e.config.DnsblZone)
	if !ok {
		return ""
	}
	server := e.config.DnsblServer
	if server == "" {
		conf, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil || len(conf.Servers) == 0 {
			e.logger.Debug(
				"no resolver available for blocklist check",
				"component", "lookup",
				"error", err,
			)
			return ""
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeA)
	client := &dns.Client{
		Timeout: e.config.Timeout,
	}
	resp, _, err := client.ExchangeContext(e.ctx, msg, server)
	if err != nil {
		e.logger.Debug(
			"blocklist query failed",
			"component", "lookup",
			"name", name,
			"error", err,
		)
		return ""
	}
	switch resp.Rcode {
	case dns.RcodeNameError:
		return VerdictClean
	case dns.RcodeSuccess:
		// continue below
	default:
		return ""
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok && a.A != nil {
			return fmt.Sprintf("%s (%s)", VerdictListed, a.A)
		}
	}
	return VerdictClean
}

// dnsblName builds the reversed-octet query name for an IPv4 address.
// Blocklist zones cover IPv4 only, so anything else reports false
func dnsblName(address string, zone string) (string, bool) {
	addr, err := netip.ParseAddr(address)
	if err != nil || !addr.Is4() {
		return "", false
	}
	v4 := addr.As4()
	name := fmt.Sprintf("%d.%d.%d.%d.%s", v4[3], v4[2], v4[1], v4[0], zone)
	return dns.Fqdn(name), true
}
