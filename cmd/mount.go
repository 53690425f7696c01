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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/toniwestbrook/repeatfs/cfg"
	"github.com/toniwestbrook/repeatfs/clock"
	repeatfsconfig "github.com/toniwestbrook/repeatfs/internal/config"
	"github.com/toniwestbrook/repeatfs/internal/fuseadapter"
	"github.com/toniwestbrook/repeatfs/internal/logger"
	"github.com/toniwestbrook/repeatfs/internal/pathtranslator"
	"github.com/toniwestbrook/repeatfs/internal/plugin"
	"github.com/toniwestbrook/repeatfs/internal/procinfo"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
	"github.com/toniwestbrook/repeatfs/internal/provenance/tracker"
	"github.com/toniwestbrook/repeatfs/internal/vdf"
	"github.com/toniwestbrook/repeatfs/metrics"
)

var mountCmd = &cobra.Command{
	Use:   "mount <target> <mount_point>",
	Short: "Mount target through repeatfs at mount_point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunConfig(); err != nil {
			return err
		}
		return runMount(args[0], args[1])
	},
}

// builtinPlugins names the plugin constructors known to the binary,
// matched against the mount configuration file's plugins= line.
var builtinPlugins = map[string]func() plugin.Plugin{
	"audit": func() plugin.Plugin { return plugin.NewAuditPlugin() },
}

func runMount(target, mountPoint string) error {
	target, err := filepath.Abs(target)
	if err != nil {
		return usageError("resolving target: %w", err)
	}
	mountPoint, err = filepath.Abs(mountPoint)
	if err != nil {
		return usageError("resolving mount point: %w", err)
	}

	mc := Settings.Mount
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	doc, err := loadMountConfig(mc.ConfigDir)
	if err != nil {
		return runtimeError(err)
	}

	resolver := vdf.New(doc.Rules, mc.MaxChainDepth)

	dispatcher, err := buildDispatcher(doc)
	if err != nil {
		return runtimeError(err)
	}

	rc := clock.RealClock{}
	cacheHighWaterMB := mc.CacheHighWaterMb
	if cacheHighWaterMB <= 0 {
		cacheHighWaterMB = cfg.DefaultCacheHighWaterMB
	}
	cache := vdf.NewCache(cacheHighWaterMB<<20, rc)

	var tr *tracker.Tracker
	var s *store.Store
	if !mc.DisableProvenance {
		s, err = store.Open(filepath.Join(target, ".repeatfs.db"), store.WithRetry(Settings.Debug.StoreRetryAttempts, 0))
		if err != nil {
			return runtimeError(fmt.Errorf("opening provenance store: %w", err))
		}
		defer s.Close()

		intro, err := procinfo.New(rc)
		if err != nil {
			return runtimeError(fmt.Errorf("initializing process introspector: %w", err))
		}
		// A degraded snapshot of this very process means the host exposes
		// no process information: the mount then runs VDF-only, with no
		// Tracker and so no provenance writes.
		if self, err := intro.Snapshot(context.Background(), os.Getpid()); err == nil && self.Degraded {
			logger.Warnf("process information unavailable; provenance recording disabled")
		} else {
			tr = tracker.New(s, intro, rc, hostname)
		}
	}

	executor := vdf.NewExecutor(cache, tr, rc, hostname)

	mh := metrics.New(prometheus.NewRegistry())
	cache.SetMetrics(mh)
	executor.SetMetrics(mh)
	if tr != nil {
		tr.SetMetrics(mh)
	}

	fsCfg := fuseadapter.Config{
		Target:     target,
		Hostname:   hostname,
		Translator: pathtranslator.New(target),
		Resolver:   resolver,
		Executor:   executor,
		Tracker:    tr,
		Store:      s,
		Dispatcher: dispatcher,
		Clock:      rc,
	}

	ctx := context.Background()
	mfs, err := fuseadapter.Mount(ctx, mountPoint, fsCfg, fuseadapter.MountOptions{
		AllowOther: mc.AllowOther,
	})
	if err != nil {
		return runtimeError(err)
	}

	logger.Infof("mounted %s at %s", target, mountPoint)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Infof("shutting down, unmounting %s", mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("unmount %s: %v", mountPoint, err)
		}
	}()

	if err := mfs.Join(ctx); err != nil {
		return runtimeError(fmt.Errorf("waiting for unmount: %w", err))
	}
	return nil
}

// loadMountConfig reads <configDir>/repeatfs.conf if present, falling back
// to the built-in default document otherwise.
func loadMountConfig(configDir string) (*repeatfsconfig.Document, error) {
	if configDir == "" {
		return repeatfsconfig.Default(), nil
	}
	path := filepath.Join(configDir, "repeatfs.conf")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return repeatfsconfig.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	doc, err := repeatfsconfig.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func buildDispatcher(doc *repeatfsconfig.Document) (*plugin.Dispatcher, error) {
	if len(doc.Plugins) == 0 {
		return nil, nil
	}
	var plugins []plugin.Plugin
	for _, name := range doc.Plugins {
		ctor, ok := builtinPlugins[name]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
		plugins = append(plugins, ctor())
	}
	dispatcher := plugin.NewDispatcher(plugins)
	if err := dispatcher.Configure(doc.PluginConfig); err != nil {
		return nil, fmt.Errorf("configuring plugins: %w", err)
	}
	return dispatcher, nil
}
