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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/ferret"
)

// programVersion is overridden at build time via -ldflags
var programVersion = "devel"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "ferret",
	Short: "ferret - IRC address lookup bot",
	Long: `ferret is an IRC bot that resolves the network address behind a nickname
and reports what an HTTP lookup service knows about it.

It joins the configured channels, keeps a roster of channel members so
nicknames resolve without asking the server, and answers the lookup command
with the service's reply. Dropped sessions reconnect automatically.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the program version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ferret %s\n", programVersion)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the settings file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := ferret.NewSettingsFromFile(configPath)
		if err != nil {
			return err
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		fmt.Printf(
			"%s: OK (%d network(s) configured)\n",
			configPath,
			len(settings.Networks),
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath,
		"config",
		"c",
		"ferret.yaml",
		"Path to the settings file",
	)
	rootCmd.PersistentFlags().BoolVar(
		&debug,
		"debug",
		false,
		"Force debug logging regardless of the configured level",
	)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
