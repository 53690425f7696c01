// Copyright 2026 The RepeatFS Authors
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

// Package cmd implements the repeatfs command line: mount, replicate,
// shutdown, generate, plugins and version, wired against cfg and the
// engine packages under internal/.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toniwestbrook/repeatfs/cfg"
	"github.com/toniwestbrook/repeatfs/internal/logger"
)

// Exit codes, per the CLI surface: 0 success, 1 usage, 2 runtime failure, 3
// verification warnings present.
const (
	ExitSuccess             = 0
	ExitUsage               = 1
	ExitRuntimeFailure      = 2
	ExitVerificationWarning = 3
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// Settings is the fully resolved configuration, populated by
	// initConfig before any subcommand's RunE runs.
	Settings cfg.Config
)

var rootCmd = &cobra.Command{
	Use:           "repeatfs",
	Short:         "A provenance-tracking passthrough filesystem",
	Long:          `repeatfs mounts a target directory through FUSE, recording file, process and IO provenance as it is used, and resolving "+"-suffixed virtual dynamic file derivations on demand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and terminates the process with the
// matching exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to one of the documented exit codes. A
// *cliError carries its own code; anything else is treated as a runtime
// failure.
func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitRuntimeFailure
}

// cliError pairs an error with the exit code it should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageError(format string, args ...interface{}) error {
	return &cliError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

func runtimeError(err error) error {
	return &cliError{code: ExitRuntimeFailure, err: err}
}

func verificationWarningError(err error) error {
	return &cliError{code: ExitVerificationWarning, err: err}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML file overriding defaults")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(replicateCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if bindErr != nil {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	if err := viper.Unmarshal(&Settings); err != nil {
		unmarshalErr = fmt.Errorf("parsing configuration: %w", err)
		return
	}

	if err := logger.InitLogFile(Settings.Logging); err != nil {
		unmarshalErr = fmt.Errorf("initializing log file: %w", err)
		return
	}
	logger.SetLogFormat(Settings.Logging.Format)
}

// preRunConfig is shared by every subcommand's RunE as its first check, so
// a bad --config-file is reported the same way regardless of which
// subcommand was invoked.
func preRunConfig() error {
	if bindErr != nil {
		return usageError("binding flags: %w", bindErr)
	}
	if configFileErr != nil {
		return usageError("%w", configFileErr)
	}
	if unmarshalErr != nil {
		return usageError("%w", unmarshalErr)
	}
	return nil
}
