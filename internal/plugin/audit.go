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

package plugin

import (
	"fmt"

	"github.com/toniwestbrook/repeatfs/internal/logger"
)

// AuditPlugin logs every tracked event at DEBUG severity. It never
// intercepts; it exists as the reference implementation other plugins are
// modeled on, and as a mount-time sanity check that the dispatcher wiring
// works end to end.
type AuditPlugin struct {
	logPath string
}

// NewAuditPlugin constructs the audit plugin with its defaults; Configure
// overrides log_path from the mount configuration file.
func NewAuditPlugin() *AuditPlugin {
	return &AuditPlugin{}
}

func (p *AuditPlugin) Name() string {
	return "audit"
}

func (p *AuditPlugin) Configure(fields map[string]string) error {
	if path, ok := fields["log_path"]; ok {
		p.logPath = path
	}
	return nil
}

func (p *AuditPlugin) Handle(ctx Context) (bool, error) {
	switch ctx.Event {
	case EventRename:
		logger.Debugf("audit: rename %s -> %s", ctx.Path, ctx.NewPath)
	case EventUnlink:
		logger.Debugf("audit: unlink %s", ctx.Path)
	default:
		logger.Debugf("audit: %s %s pid=%d bytes=%d", ctx.Event, ctx.Path, ctx.PID, ctx.Bytes)
	}
	return false, nil
}
