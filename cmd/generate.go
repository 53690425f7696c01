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
	"os"

	"github.com/spf13/cobra"

	"github.com/toniwestbrook/repeatfs/internal/config"
)

var generateOutput string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a default mount configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunConfig(); err != nil {
			return err
		}
		rendered := config.Render(config.Default())
		if generateOutput == "" {
			fmt.Fprint(os.Stdout, rendered)
			return nil
		}
		if err := os.WriteFile(generateOutput, []byte(rendered), 0o644); err != nil {
			return runtimeError(fmt.Errorf("writing %s: %w", generateOutput, err))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "File to write the configuration to, instead of stdout")
}
