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

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/ferret/dispatch"
	"github.com/blinklabs-io/ferret/floodgate"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol/registration"
)

// DefaultLookupBaseUrl is the lookup service used when the settings file does
// not name one
const DefaultLookupBaseUrl = "http://ip-api.com/line/"

// Duration is a time.Duration that reads from YAML in the usual Go form
// ("10s", "1m30s")
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Settings is the daemon configuration. Parsing starts from the defaults
// returned by NewSettings, so absent keys keep their default values
type Settings struct {
	LogLevel string            `yaml:"logLevel"`
	Lookup   LookupSettings    `yaml:"lookup"`
	Command  CommandSettings   `yaml:"command"`
	Networks []NetworkSettings `yaml:"networks"`
}

// LookupSettings configures the HTTP lookup service and the optional DNSBL
// check
type LookupSettings struct {
	BaseUrl      string   `yaml:"baseUrl"`
	Timeout      Duration `yaml:"timeout"`
	ExtendedInfo bool     `yaml:"extendedInfo"`
	DnsblZone    string   `yaml:"dnsblZone"`
	DnsblServer  string   `yaml:"dnsblServer"`
}

// CommandSettings configures command handling. Changes to these apply to the
// next invocation when the settings file is reloaded
type CommandSettings struct {
	Name              string         `yaml:"name"`
	Prefix            string         `yaml:"prefix"`
	RequirePrivilege  bool           `yaml:"requirePrivilege"`
	MaxLatency        Duration       `yaml:"maxLatency"`
	FloodLimit        int            `yaml:"floodLimit"`
	FloodWindow       Duration       `yaml:"floodWindow"`
	EnableWebchat     bool           `yaml:"enableWebchat"`
	WebGateways       []string       `yaml:"webGateways"`
	EnableHelp        bool           `yaml:"enableHelp"`
	EnableVersion     bool           `yaml:"enableVersion"`
	ShowPrefix        bool           `yaml:"showPrefix"`
	LongLabels        bool           `yaml:"longLabels"`
	ShowCommandBanner bool           `yaml:"showCommandBanner"`
	Notices           NoticeSettings `yaml:"notices"`
}

// NoticeSettings toggles the informational lines sent ahead of a lookup reply
type NoticeSettings struct {
	Processing bool `yaml:"processing"`
	Argument   bool `yaml:"argument"`
	Webchat    bool `yaml:"webchat"`
	Public     bool `yaml:"public"`
	StatsReply bool `yaml:"statsReply"`
	Nick       bool `yaml:"nick"`
}

// NetworkSettings configures one IRC network session. Name doubles as the
// session tag and, when no explicit address is given, selects a preset from
// networks.go
type NetworkSettings struct {
	Name           string       `yaml:"name"`
	Address        string       `yaml:"address"`
	UseTls         bool         `yaml:"useTls"`
	Nick           string       `yaml:"nick"`
	AltNicks       []string     `yaml:"altNicks"`
	Username       string       `yaml:"username"`
	Realname       string       `yaml:"realname"`
	ServerPassword string       `yaml:"serverPassword"`
	Sasl           SaslSettings `yaml:"sasl"`
	Channels       []string     `yaml:"channels"`
	Proxy          string       `yaml:"proxy"`
	PingPeriod     Duration     `yaml:"pingPeriod"`
	QueryTimeout   Duration     `yaml:"queryTimeout"`
}

// SaslSettings configures SASL authentication. An empty mechanism disables it
type SaslSettings struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// NewSettings returns settings populated with defaults
func NewSettings() *Settings {
	return &Settings{
		LogLevel: "info",
		Lookup: LookupSettings{
			BaseUrl: DefaultLookupBaseUrl,
			Timeout: Duration(lookup.DefaultTimeout),
		},
		Command: CommandSettings{
			Name:          dispatch.DefaultCommandName,
			Prefix:        dispatch.DefaultCommandPrefix,
			FloodLimit:    floodgate.DefaultLimit,
			FloodWindow:   Duration(floodgate.DefaultWindow),
			EnableWebchat: true,
			WebGateways:   []string{dispatch.DefaultWebGateway},
			EnableHelp:    true,
			EnableVersion: true,
			ShowPrefix:    true,
			Notices: NoticeSettings{
				Processing: true,
				Argument:   true,
				Webchat:    true,
				Public:     true,
				StatsReply: true,
				Nick:       true,
			},
		},
	}
}

// NewSettingsFromReader parses YAML settings from the provided reader.
// Unknown keys are rejected to catch typos, and absent keys keep their
// defaults
func NewSettingsFromReader(reader io.Reader) (*Settings, error) {
	s := NewSettings()
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty document yields the defaults
			s.normalize()
			return s, nil
		}
		return nil, err
	}
	s.normalize()
	return s, nil
}

// NewSettingsFromFile parses YAML settings from the named file
func NewSettingsFromFile(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := NewSettingsFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// normalize fills in per-network derived defaults that cannot be
// pre-populated before the network list is known
func (s *Settings) normalize() {
	for i := range s.Networks {
		network := &s.Networks[i]
		network.Name = strings.ToLower(strings.TrimSpace(network.Name))
		if network.Username == "" {
			network.Username = strings.ToLower(network.Nick)
		}
		if network.Realname == "" {
			network.Realname = network.Nick
		}
		channels := network.Channels[:0]
		for _, channel := range network.Channels {
			channel = strings.TrimSpace(channel)
			if channel == "" {
				continue
			}
			channels = append(channels, channel)
		}
		network.Channels = channels
	}
}

// Clone returns a deep copy of the settings, so a reloaded configuration can
// replace the active snapshot without sharing slices with it
func (s *Settings) Clone() (*Settings, error) {
	var clone Settings
	err := copier.CopyWithOption(
		&clone,
		s,
		copier.Option{DeepCopy: true},
	)
	if err != nil {
		return nil, err
	}
	return &clone, nil
}

// SlogLevel maps the configured log level name onto a slog level
func (s *Settings) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(s.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s.LogLevel)
}

// Validate checks the settings for problems that would keep the daemon from
// running
func (s *Settings) Validate() error {
	if _, err := s.SlogLevel(); err != nil {
		return err
	}
	if s.Lookup.BaseUrl == "" {
		return fmt.Errorf("lookup base URL must not be empty")
	}
	if s.Lookup.Timeout < 0 {
		return fmt.Errorf("lookup timeout must not be negative")
	}
	if s.Command.Name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if s.Command.FloodLimit < 0 {
		return fmt.Errorf("flood limit must not be negative")
	}
	if len(s.Networks) == 0 {
		return fmt.Errorf("no networks configured")
	}
	seen := map[string]bool{}
	for _, network := range s.Networks {
		if network.Name == "" {
			return fmt.Errorf("network entry without a name")
		}
		if seen[network.Name] {
			return fmt.Errorf("duplicate network name: %s", network.Name)
		}
		seen[network.Name] = true
		if network.Nick == "" {
			return fmt.Errorf("network %s: no nick configured", network.Name)
		}
		if _, _, err := network.Endpoint(); err != nil {
			return fmt.Errorf("network %s: %w", network.Name, err)
		}
		if len(network.Channels) == 0 {
			return fmt.Errorf("network %s: no channels configured", network.Name)
		}
		for _, channel := range network.Channels {
			if channel == "" || (channel[0] != '#' && channel[0] != '&') {
				return fmt.Errorf(
					"network %s: invalid channel name: %s",
					network.Name,
					channel,
				)
			}
		}
		switch network.Sasl.Mechanism {
		case "",
			registration.SaslMechanismPlain,
			registration.SaslMechanismScramSha256:
		default:
			return fmt.Errorf(
				"network %s: unsupported sasl mechanism: %s",
				network.Name,
				network.Sasl.Mechanism,
			)
		}
	}
	return nil
}

// Endpoint resolves the server address and TLS mode for the entry. An entry
// without an explicit address takes both from the preset named by Name
func (n NetworkSettings) Endpoint() (string, bool, error) {
	if n.Address != "" {
		return n.Address, n.UseTls, nil
	}
	preset := NetworkByName(n.Name)
	if preset == NetworkInvalid {
		return "", false, fmt.Errorf(
			"unknown network %q and no address configured",
			n.Name,
		)
	}
	return preset.Address, preset.UseTls, nil
}

// MonitoredChannels returns the channel monitoring entries for the dispatcher,
// one network/channel pair per configured channel
func (s *Settings) MonitoredChannels() []string {
	var entries []string
	for _, network := range s.Networks {
		for _, channel := range network.Channels {
			entries = append(entries, network.Name+"/"+channel)
		}
	}
	return entries
}

// DispatchOptions maps the command settings onto a dispatcher options
// snapshot
func (s *Settings) DispatchOptions(version string) dispatch.Options {
	opts := dispatch.DefaultOptions()
	opts.CommandName = s.Command.Name
	opts.CommandPrefix = s.Command.Prefix
	opts.Channels = s.MonitoredChannels()
	opts.RequirePrivilege = s.Command.RequirePrivilege
	opts.MaxLatency = time.Duration(s.Command.MaxLatency)
	opts.FloodLimit = s.Command.FloodLimit
	opts.FloodWindow = time.Duration(s.Command.FloodWindow)
	opts.EnableWebchat = s.Command.EnableWebchat
	opts.WebGateways = append([]string(nil), s.Command.WebGateways...)
	opts.EnableHelp = s.Command.EnableHelp
	opts.EnableVersion = s.Command.EnableVersion
	opts.Version = version
	opts.Notices = dispatch.Notices{
		Processing: s.Command.Notices.Processing,
		Argument:   s.Command.Notices.Argument,
		Webchat:    s.Command.Notices.Webchat,
		Public:     s.Command.Notices.Public,
		StatsReply: s.Command.Notices.StatsReply,
		Nick:       s.Command.Notices.Nick,
	}
	opts.ShowPrefix = s.Command.ShowPrefix
	opts.LongLabels = s.Command.LongLabels
	opts.ShowCommandBanner = s.Command.ShowCommandBanner
	return opts
}
