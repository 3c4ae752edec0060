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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testZone = "dnsbl.example.com"

// newBlocklistServer starts a DNS server on a random local UDP port and
// returns its address plus a shutdown function
func newBlocklistServer(
	t *testing.T,
	handler dns.HandlerFunc,
) (string, func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &dns.Server{
		PacketConn: pc,
		Handler:    handler,
	}
	started := make(chan struct{})
	server.NotifyStartedFunc = func() { close(started) }
	go func() { _ = server.ActivateAndServe() }()
	<-started
	return pc.LocalAddr().String(), func() { _ = server.Shutdown() }
}

func listedHandler(questionChan chan string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		if questionChan != nil {
			questionChan <- r.Question[0].Name
		}
		msg := new(dns.Msg)
		msg.SetReply(r)
		rr, err := dns.NewRR(r.Question[0].Name + " 300 IN A 127.0.0.2")
		if err == nil {
			msg.Answer = append(msg.Answer, rr)
		}
		_ = w.WriteMsg(msg)
	}
}

func newBlocklistExecutor(server string) *Executor {
	return NewExecutor(
		NewConfig(
			WithDnsbl(testZone),
			WithDnsblServer(server),
			WithTimeout(2*time.Second),
		),
	)
}

func TestDnsblName(t *testing.T) {
	testDefs := []struct {
		address      string
		zone         string
		expectedName string
		expectedOk   bool
	}{
		{"198.51.100.7", testZone, "7.100.51.198.dnsbl.example.com.", true},
		{"198.51.100.7", testZone + ".", "7.100.51.198.dnsbl.example.com.", true},
		{"10.0.0.1", testZone, "1.0.0.10.dnsbl.example.com.", true},
		{"2001:db8::1", testZone, "", false},
		{"host.example.net", testZone, "", false},
		{"", testZone, "", false},
	}
	for _, testDef := range testDefs {
		name, ok := dnsblName(testDef.address, testDef.zone)
		if ok != testDef.expectedOk {
			t.Fatalf(
				"did not get expected result for address %q: got %v, expected %v",
				testDef.address,
				ok,
				testDef.expectedOk,
			)
		}
		if name != testDef.expectedName {
			t.Fatalf(
				"did not get expected name for address %q: got %q, expected %q",
				testDef.address,
				name,
				testDef.expectedName,
			)
		}
	}
}

func TestDnsblVerdictListed(t *testing.T) {
	defer goleak.VerifyNone(t)
	questionChan := make(chan string, 1)
	server, shutdown := newBlocklistServer(t, listedHandler(questionChan))
	defer shutdown()
	e := newBlocklistExecutor(server)
	defer e.Stop()
	verdict := e.dnsblVerdict("198.51.100.7")
	require.Equal(t, "listed (127.0.0.2)", verdict)
	require.Equal(t, "7.100.51.198.dnsbl.example.com.", <-questionChan)
}

func TestDnsblVerdictClean(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, shutdown := newBlocklistServer(
		t,
		func(w dns.ResponseWriter, r *dns.Msg) {
			msg := new(dns.Msg)
			msg.SetRcode(r, dns.RcodeNameError)
			_ = w.WriteMsg(msg)
		},
	)
	defer shutdown()
	e := newBlocklistExecutor(server)
	defer e.Stop()
	require.Equal(t, VerdictClean, e.dnsblVerdict("198.51.100.7"))
}

// A success response without an A record still counts as clean
func TestDnsblVerdictNoData(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, shutdown := newBlocklistServer(
		t,
		func(w dns.ResponseWriter, r *dns.Msg) {
			msg := new(dns.Msg)
			msg.SetReply(r)
			_ = w.WriteMsg(msg)
		},
	)
	defer shutdown()
	e := newBlocklistExecutor(server)
	defer e.Stop()
	require.Equal(t, VerdictClean, e.dnsblVerdict("198.51.100.7"))
}

func TestDnsblVerdictServerFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, shutdown := newBlocklistServer(
		t,
		func(w dns.ResponseWriter, r *dns.Msg) {
			msg := new(dns.Msg)
			msg.SetRcode(r, dns.RcodeServerFailure)
			_ = w.WriteMsg(msg)
		},
	)
	defer shutdown()
	e := newBlocklistExecutor(server)
	defer e.Stop()
	require.Equal(t, "", e.dnsblVerdict("198.51.100.7"))
}

func TestDnsblVerdictSkipsNonIPv4(t *testing.T) {
	defer goleak.VerifyNone(t)
	// No server is running on this address. Out-of-scope addresses return
	// before any query is sent, so no timeout is hit either
	e := newBlocklistExecutor("127.0.0.1:1")
	defer e.Stop()
	require.Equal(t, "", e.dnsblVerdict("host.example.net"))
	require.Equal(t, "", e.dnsblVerdict("2001:db8::1"))
}

func TestExecuteAppliesDnsblVerdict(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, shutdown := newBlocklistServer(t, listedHandler(nil))
	defer shutdown()
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "user is online")
		}),
	)
	defer srv.Close()
	results := make(chan Result, 1)
	e := NewExecutor(
		NewConfig(
			WithBaseUrl(srv.URL+"/"),
			WithDnsbl(testZone),
			WithDnsblServer(server),
			WithTimeout(2*time.Second),
			WithResultFunc(
				func(result Result) error {
					results <- result
					return nil
				},
			),
		),
	)
	defer e.Stop()
	e.Execute("198.51.100.7")
	select {
	case result := <-results:
		require.Equal(t, "user is online", result.Text)
		require.Equal(t, "listed (127.0.0.2)", result.Dnsbl)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for lookup result")
	}
}
