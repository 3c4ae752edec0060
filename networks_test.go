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

package ferret_test

import (
	"testing"

	"github.com/blinklabs-io/ferret"
)

func TestNetworkByName(t *testing.T) {
	network := ferret.NetworkByName("libera")
	if network != ferret.NetworkLibera {
		t.Fatalf("did not get expected network: %s", network)
	}
	network = ferret.NetworkByName("nonexistent")
	if network != ferret.NetworkInvalid {
		t.Fatalf("did not get expected invalid network: %s", network)
	}
}

func TestNetworkByAddress(t *testing.T) {
	network := ferret.NetworkByAddress("irc.oftc.net:6697")
	if network != ferret.NetworkOftc {
		t.Fatalf("did not get expected network: %s", network)
	}
	network = ferret.NetworkByAddress("irc.example.net:6667")
	if network != ferret.NetworkInvalid {
		t.Fatalf("did not get expected invalid network: %s", network)
	}
}
