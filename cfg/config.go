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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mount MountConfig `yaml:"mount"`

	Replicate ReplicateConfig `yaml:"replicate"`

	Debug DebugConfig `yaml:"debug"`

	Logging LoggingConfig `yaml:"logging"`
}

type MountConfig struct {
	Foreground bool `yaml:"foreground"`

	AllowOther bool `yaml:"allow-other"`

	DisableProvenance bool `yaml:"disable-provenance"`

	ConfigDir string `yaml:"config-dir"`

	CacheHighWaterMb int64 `yaml:"cache-high-water-mb"`

	MaxChainDepth int `yaml:"max-chain-depth"`
}

type ReplicateConfig struct {
	Dest string `yaml:"dest"`

	ListOnly bool `yaml:"list-only"`

	Expand bool `yaml:"expand"`

	StdoutFile string `yaml:"stdout-file"`

	StderrFile string `yaml:"stderr-file"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	StoreRetryAttempts int `yaml:"store-retry-attempts"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`

	FilePath string `yaml:"file-path"`

	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

type LogRotateConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("foreground", "f", false, "Stay in the foreground after mounting.")

	err = viper.BindPFlag("mount.foreground", flagSet.Lookup("foreground"))
	if err != nil {
		return err
	}

	flagSet.BoolP("allow-other", "a", false, "Allow other users to access the mount.")

	err = viper.BindPFlag("mount.allow-other", flagSet.Lookup("allow-other"))
	if err != nil {
		return err
	}

	flagSet.BoolP("disable-provenance", "p", false, "Mount without recording provenance.")

	err = viper.BindPFlag("mount.disable-provenance", flagSet.Lookup("disable-provenance"))
	if err != nil {
		return err
	}

	flagSet.StringP("config-dir", "c", "", "Directory holding the VDF rule and plugin config file.")

	err = viper.BindPFlag("mount.config-dir", flagSet.Lookup("config-dir"))
	if err != nil {
		return err
	}

	flagSet.Int64P("cache-high-water-mb", "", DefaultCacheHighWaterMB, "VDF derivation cache high water mark, in megabytes.")

	err = viper.BindPFlag("mount.cache-high-water-mb", flagSet.Lookup("cache-high-water-mb"))
	if err != nil {
		return err
	}

	flagSet.IntP("max-chain-depth", "", DefaultMaxChainDepth, "Maximum number of chained VDF derivations.")

	err = viper.BindPFlag("mount.max-chain-depth", flagSet.Lookup("max-chain-depth"))
	if err != nil {
		return err
	}

	flagSet.StringP("dest", "r", "", "Root directory to replicate into.")

	err = viper.BindPFlag("replicate.dest", flagSet.Lookup("dest"))
	if err != nil {
		return err
	}

	flagSet.BoolP("list-only", "l", false, "Print the execution schedule without running it.")

	err = viper.BindPFlag("replicate.list-only", flagSet.Lookup("list-only"))
	if err != nil {
		return err
	}

	flagSet.BoolP("expand", "e", false, "Expand collapsed process groups before scheduling.")

	err = viper.BindPFlag("replicate.expand", flagSet.Lookup("expand"))
	if err != nil {
		return err
	}

	flagSet.StringP("stdout-file", "", "", "File to capture replicated process stdout into.")

	err = viper.BindPFlag("replicate.stdout-file", flagSet.Lookup("stdout-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("stderr-file", "", "", "File to capture replicated process stderr into.")

	err = viper.BindPFlag("replicate.stderr-file", flagSet.Lookup("stderr-file"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")

	err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.IntP("store-retry-attempts", "", DefaultStoreRetryAttempts, "Number of times to retry a store transaction before giving up.")

	err = viper.BindPFlag("debug.store-retry-attempts", flagSet.Lookup("store-retry-attempts"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Logging output format, text or json.")

	err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Minimum severity to log: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")

	err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "File to write logs to, instead of stderr.")

	err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	return nil
}
