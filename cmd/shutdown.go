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
	"fmt"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"
)

var shutdownMountPoint string

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Unmount a running repeatfs mount",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunConfig(); err != nil {
			return err
		}
		if shutdownMountPoint == "" {
			return usageError("shutdown requires -m <mount_point>")
		}
		if err := fuse.Unmount(shutdownMountPoint); err != nil {
			return runtimeError(fmt.Errorf("unmounting %s: %w", shutdownMountPoint, err))
		}
		return nil
	},
}

func init() {
	shutdownCmd.Flags().StringVarP(&shutdownMountPoint, "mount", "m", "", "Mount point to unmount")
}
