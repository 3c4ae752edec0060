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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/ferret"
	"github.com/blinklabs-io/ferret/dispatch"
	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol/pingpong"
	"github.com/blinklabs-io/ferret/protocol/registration"
	"github.com/blinklabs-io/ferret/protocol/statsquery"
)

const (
	dialTimeout       = 30 * time.Second
	reconnectDelayMin = 5 * time.Second
	reconnectDelayMax = 5 * time.Minute
)

// daemon runs one bot per configured network and reconnects sessions that
// drop. The settings watcher swaps the active snapshot at runtime: command
// options apply from the next command, while lookup and connection settings
// take effect when a session reconnects
type daemon struct {
	logger        *slog.Logger
	manager       *ferret.SessionManager
	settings      *ferret.Settings
	settingsMutex sync.RWMutex
	closedChans   map[string]chan error
	closedMutex   sync.Mutex
}

func newDaemon(logger *slog.Logger, settings *ferret.Settings) *daemon {
	d := &daemon{
		logger:      logger,
		settings:    settings,
		closedChans: make(map[string]chan error),
	}
	d.manager = ferret.NewSessionManager(ferret.SessionManagerConfig{
		ClosedFunc: d.sessionClosed,
	})
	return d
}

func runDaemon(configPath string) error {
	settings, err := ferret.NewSettingsFromFile(configPath)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	level, err := settings.SlogLevel()
	if err != nil {
		return err
	}
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	)
	d := newDaemon(logger, settings)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	watcher, err := ferret.NewSettingsWatcher(
		configPath,
		logger,
		d.replaceSettings,
	)
	if err != nil {
		// Hot reload is a convenience, a failed watch shouldn't stop the bot
		logger.Warn(
			fmt.Sprintf("settings watch unavailable: %s", err),
			"component", "daemon",
		)
	} else {
		defer watcher.Stop()
	}

	logger.Info(
		fmt.Sprintf("starting ferret %s", programVersion),
		"component", "daemon",
		"networks", len(settings.Networks),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, network := range settings.Networks {
		network := network
		group.Go(func() error {
			return d.runNetwork(groupCtx, network.Name)
		})
	}
	return group.Wait()
}

func (d *daemon) currentSettings() *ferret.Settings {
	d.settingsMutex.RLock()
	defer d.settingsMutex.RUnlock()
	return d.settings
}

func (d *daemon) replaceSettings(settings *ferret.Settings) {
	d.settingsMutex.Lock()
	d.settings = settings
	d.settingsMutex.Unlock()
	d.logger.Info(
		"settings reloaded",
		"component", "daemon",
		"networks", len(settings.Networks),
	)
}

// dispatchOptions builds a dispatcher options snapshot from the active
// settings. Bots call this on every command, which is what makes command
// settings hot-reloadable
func (d *daemon) dispatchOptions() dispatch.Options {
	return d.currentSettings().DispatchOptions(programVersion)
}

func (d *daemon) networkSettings(name string) (ferret.NetworkSettings, bool) {
	for _, network := range d.currentSettings().Networks {
		if network.Name == name {
			return network, true
		}
	}
	return ferret.NetworkSettings{}, false
}

// sessionClosed runs on the session manager's watch goroutine when a bot
// reports an asynchronous error or finishes shutting down
func (d *daemon) sessionClosed(tag string, connId irc.ConnectionId, err error) {
	if err != nil {
		d.logger.Warn(
			fmt.Sprintf("session error: %s", err),
			"component", "daemon",
			"network", tag,
			"connection_id", connId.String(),
		)
	}
	d.manager.RemoveSession(tag)
	d.closedMutex.Lock()
	closed := d.closedChans[tag]
	delete(d.closedChans, tag)
	d.closedMutex.Unlock()
	if closed != nil {
		closed <- err
	}
}

// runNetwork keeps one session alive for the named network until the context
// is cancelled or the network disappears from the settings
func (d *daemon) runNetwork(ctx context.Context, name string) error {
	logger := d.logger.With("component", "daemon", "network", name)
	delay := reconnectDelayMin
	for {
		network, ok := d.networkSettings(name)
		if !ok {
			logger.Info("network removed from settings, stopping session")
			return nil
		}
		started := time.Now()
		err := d.runSession(ctx, network)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn(fmt.Sprintf("session ended: %s", err))
		} else {
			logger.Info("session ended")
		}
		// A session that stayed up for a while earns a fresh backoff
		if time.Since(started) > time.Minute {
			delay = reconnectDelayMin
		}
		logger.Info(fmt.Sprintf("reconnecting in %s", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectDelayMax)
	}
}

// runSession connects a single bot and blocks until the session ends
func (d *daemon) runSession(
	ctx context.Context,
	network ferret.NetworkSettings,
) error {
	settings := d.currentSettings()
	address, useTls, err := network.Endpoint()
	if err != nil {
		return err
	}
	options := []ferret.BotOptionFunc{
		ferret.WithNetworkTag(network.Name),
		ferret.WithLogger(d.logger),
		ferret.WithTls(useTls),
		ferret.WithDialTimeout(dialTimeout),
		ferret.WithChannels(network.Channels...),
		ferret.WithRegistrationConfig(registrationConfig(network)),
		ferret.WithLookupConfig(lookupConfig(settings.Lookup)),
		ferret.WithOptionsFunc(d.dispatchOptions),
	}
	if network.Proxy != "" {
		options = append(options, ferret.WithProxy(network.Proxy))
	}
	if network.PingPeriod > 0 {
		options = append(options, ferret.WithPingPongConfig(
			pingpong.NewConfig(
				pingpong.WithPeriod(time.Duration(network.PingPeriod)),
			),
		))
	}
	if network.QueryTimeout > 0 {
		options = append(options, ferret.WithStatsQueryConfig(
			statsquery.NewConfig(
				statsquery.WithQueryTimeout(
					time.Duration(network.QueryTimeout),
				),
			),
		))
	}
	bot, err := ferret.NewBot(options...)
	if err != nil {
		return err
	}

	// Register the closed channel before the session can report anything
	closed := make(chan error, 1)
	d.closedMutex.Lock()
	d.closedChans[network.Name] = closed
	d.closedMutex.Unlock()

	d.logger.Info(
		"connecting",
		"component", "daemon",
		"network", network.Name,
		"address", address,
	)
	if err := bot.Dial("tcp", address); err != nil {
		d.closedMutex.Lock()
		delete(d.closedChans, network.Name)
		d.closedMutex.Unlock()
		bot.Close()
		return err
	}
	d.manager.AddSession(bot)

	// Close the session when the daemon shuts down
	stopClose := context.AfterFunc(ctx, func() {
		bot.Close()
	})
	defer stopClose()

	err = <-closed
	// Make sure the bot finishes tearing down before reconnecting
	bot.Close()
	return err
}

func registrationConfig(network ferret.NetworkSettings) registration.Config {
	options := []registration.RegistrationOptionFunc{
		registration.WithNick(network.Nick),
		registration.WithAltNicks(network.AltNicks...),
		registration.WithUsername(network.Username),
		registration.WithRealname(network.Realname),
	}
	if network.ServerPassword != "" {
		options = append(
			options,
			registration.WithServerPassword(network.ServerPassword),
		)
	}
	if network.Sasl.Mechanism != "" {
		options = append(options, registration.WithSasl(
			network.Sasl.Mechanism,
			network.Sasl.Username,
			network.Sasl.Password,
		))
	}
	return registration.NewConfig(options...)
}

func lookupConfig(settings ferret.LookupSettings) lookup.Config {
	options := []lookup.LookupOptionFunc{
		lookup.WithBaseUrl(settings.BaseUrl),
		lookup.WithTimeout(time.Duration(settings.Timeout)),
		lookup.WithExtendedInfo(settings.ExtendedInfo),
	}
	if settings.DnsblZone != "" {
		options = append(options, lookup.WithDnsbl(settings.DnsblZone))
		if settings.DnsblServer != "" {
			options = append(
				options,
				lookup.WithDnsblServer(settings.DnsblServer),
			)
		}
	}
	return lookup.NewConfig(options...)
}
