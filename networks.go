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

package ferret

// Network definitions
var (
	NetworkLibera = Network{
		Name:    "libera",
		Address: "irc.libera.chat:6697",
		UseTls:  true,
	}
	NetworkOftc = Network{
		Name:    "oftc",
		Address: "irc.oftc.net:6697",
		UseTls:  true,
	}
	NetworkEfnet = Network{
		Name:    "efnet",
		Address: "irc.efnet.org:6667",
	}
	NetworkUndernet = Network{
		Name:    "undernet",
		Address: "irc.undernet.org:6667",
	}

	NetworkInvalid = Network{
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkLibera,
	NetworkOftc,
	NetworkEfnet,
	NetworkUndernet,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByAddress returns a predefined network by server address
func NetworkByAddress(address string) Network {
	for _, network := range networks {
		if network.Address == address {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents an IRC network
type Network struct {
	Name    string
	Address string // host:port of a round-robin server entry
	UseTls  bool
}

func (n Network) String() string {
	return n.Name
}
