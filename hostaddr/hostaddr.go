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

// Package hostaddr classifies the host and ident portions of IRC user
// identities. The heuristics lean conservative: a token that merely resembles
// an address is only accepted when it cannot also be read as a hostname,
// since a false positive would send junk to the lookup service.
package hostaddr

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Shortest and longest tokens accepted as a literal address. Three
	// characters covers the shortest IPv6 form (::1) and 45 covers an
	// IPv4-mapped IPv6 address spelled out in full
	minAddressLength = 3
	maxAddressLength = 45

	hexTokenLength = 8
)

// IsWebGatewayHost reports whether host belongs to one of the given web
// gateway domains. Matching is case-insensitive and accepts the domain
// itself or any subdomain of it, since gateways embed per-user labels
func IsWebGatewayHost(host string, gateways []string) bool {
	host = strings.ToLower(host)
	for _, gateway := range gateways {
		gateway = strings.ToLower(strings.TrimSpace(gateway))
		if gateway == "" {
			continue
		}
		if host == gateway || strings.HasSuffix(host, "."+gateway) {
			return true
		}
	}
	return false
}

// IsHexHost reports whether s is an encoded IPv4 address of the form used by
// webchat gateways: exactly eight hex digits, optionally preceded by a single
// arbitrary character such as an ident prefix (~c0a80101)
func IsHexHost(s string) bool {
	switch len(s) {
	case hexTokenLength:
		return isHexDigits(s)
	case hexTokenLength + 1:
		return isHexDigits(s[1:])
	default:
		return false
	}
}

// LooksLikeHostname reports whether s ends in an alphabetic label after a
// dot, which marks it as a resolvable name rather than a literal address
func LooksLikeHostname(s string) bool {
	idx := strings.LastIndexByte(s, '.')
	if idx < 0 || idx == len(s)-1 {
		return false
	}
	for _, c := range s[idx+1:] {
		if !isAlpha(c) {
			return false
		}
	}
	return true
}

// LooksLikeAddress reports whether s plausibly names an IPv4 or IPv6 address:
// hex digits, dots, and colons only, within sane length bounds, containing at
// least one separator, and not readable as a hostname. Requiring a separator
// keeps short mode-ish tokens like "deaf" from being treated as addresses
func LooksLikeAddress(s string) bool {
	if len(s) < minAddressLength || len(s) > maxAddressLength {
		return false
	}
	separator := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isHexDigit(c):
		case c == '.' || c == ':':
			separator = true
		default:
			return false
		}
	}
	if !separator {
		return false
	}
	return !LooksLikeHostname(s)
}

// HexToIPv4 decodes a webchat-style hex token into dotted IPv4 form. The
// result is empty when the token does not have the expected shape
func HexToIPv4(s string) string {
	if !IsHexHost(s) {
		return ""
	}
	token := s[len(s)-hexTokenLength:]
	octets := make([]string, 0, 4)
	for i := 0; i < hexTokenLength; i += 2 {
		val, err := strconv.ParseUint(token[i:i+2], 16, 8)
		if err != nil {
			return ""
		}
		octets = append(octets, fmt.Sprintf("%d", val))
	}
	return strings.Join(octets, ".")
}

func isHexDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'f') ||
		(c >= 'A' && c <= 'F')
}

func isAlpha(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
