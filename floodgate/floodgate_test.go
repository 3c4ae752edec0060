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

package floodgate_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/ferret/floodgate"
	"go.uber.org/goleak"
)

func TestGateAdmitCeiling(t *testing.T) {
	defer goleak.VerifyNone(t)
	gate := floodgate.New()
	defer gate.Stop()
	limit := 5
	window := time.Minute
	for i := 0; i < limit; i++ {
		if !gate.Admit(limit, window) {
			t.Fatalf("admission %d unexpectedly rejected", i+1)
		}
	}
	if gate.Admit(limit, window) {
		t.Fatalf("admission beyond ceiling unexpectedly allowed")
	}
	if gate.Admit(limit, window) {
		t.Fatalf("repeat admission beyond ceiling unexpectedly allowed")
	}
}

func TestGateWindowExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)
	gate := floodgate.New()
	defer gate.Stop()
	limit := 2
	window := 50 * time.Millisecond
	if !gate.Admit(limit, window) || !gate.Admit(limit, window) {
		t.Fatalf("admissions within ceiling unexpectedly rejected")
	}
	if gate.Admit(limit, window) {
		t.Fatalf("admission beyond ceiling unexpectedly allowed")
	}
	time.Sleep(window + 50*time.Millisecond)
	if gate.Count() != 0 {
		t.Fatalf("count did not reset after window expiry: %d", gate.Count())
	}
	if !gate.Admit(limit, window) {
		t.Fatalf("admission in fresh window unexpectedly rejected")
	}
}

func TestGateRefund(t *testing.T) {
	defer goleak.VerifyNone(t)
	gate := floodgate.New()
	defer gate.Stop()
	limit := 3
	window := time.Minute
	if !gate.Admit(limit, window) {
		t.Fatalf("first admission unexpectedly rejected")
	}
	before := gate.Count()
	// A continuation admits and then refunds, leaving the count unchanged
	if !gate.Admit(limit, window) {
		t.Fatalf("continuation admission unexpectedly rejected")
	}
	gate.Refund()
	if gate.Count() != before {
		t.Fatalf(
			"continuation changed admission count: got %d, expected %d",
			gate.Count(),
			before,
		)
	}
}

func TestGateRefundFloor(t *testing.T) {
	defer goleak.VerifyNone(t)
	gate := floodgate.New()
	defer gate.Stop()
	gate.Refund()
	if gate.Count() != 0 {
		t.Fatalf("refund on empty gate produced count %d", gate.Count())
	}
}

func TestGateDisabled(t *testing.T) {
	defer goleak.VerifyNone(t)
	gate := floodgate.New()
	defer gate.Stop()
	for i := 0; i < 100; i++ {
		if !gate.Admit(0, 0) {
			t.Fatalf("disabled gate rejected admission %d", i+1)
		}
	}
}
