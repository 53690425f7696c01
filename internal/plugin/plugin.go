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

// Package plugin defines the capability-set plugin interface and the
// ordered dispatcher that the FUSE adapter drives on every tracked event.
// Plugins opt into the events they care about by implementing the matching
// capability interface; a plugin that returns true from Intercept() stops
// later plugins in the chain from seeing that event.
package plugin

// Event names the filesystem event a plugin is being notified of.
type Event string

const (
	EventOpen   Event = "open"
	EventRead   Event = "read"
	EventWrite  Event = "write"
	EventClose  Event = "close"
	EventRename Event = "rename"
	EventUnlink Event = "unlink"
)

// Context carries the details of a single event to a plugin. Fields not
// relevant to the current event are left at their zero value.
type Context struct {
	Event   Event
	Path    string
	NewPath string
	PID     int
	Bytes   int64
}

// Plugin is the minimal shape every plugin satisfies: a stable name used in
// configuration (`plugin_name.field=value`) and in the `plugins` CLI
// listing. Plugins additionally implement OpenHandler, ReadWriteHandler,
// CloseHandler, RenameHandler, or UnlinkHandler for the events they track.
type Plugin interface {
	Name() string
}

// Handler is implemented by a plugin that wants to observe or intercept an
// event. Returning intercept=true stops the dispatcher from calling any
// plugin later in the chain for this event.
type Handler interface {
	Plugin
	Handle(ctx Context) (intercept bool, err error)
}

// Configurable is implemented by a plugin that accepts its namespaced
// fields from the mount configuration file before the mount starts.
type Configurable interface {
	Plugin
	Configure(fields map[string]string) error
}

// Dispatcher holds the ordered set of plugins active for a mount and
// drives them on each tracked event.
type Dispatcher struct {
	plugins []Plugin
}

// NewDispatcher builds a dispatcher over plugins, in the order given. Order
// matters: it is the order plugins are consulted, and the order an
// intercepting plugin stops the chain.
func NewDispatcher(plugins []Plugin) *Dispatcher {
	return &Dispatcher{plugins: append([]Plugin(nil), plugins...)}
}

// Names returns the names of every registered plugin, in dispatch order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.plugins))
	for i, p := range d.plugins {
		names[i] = p.Name()
	}
	return names
}

// Configure passes namespaced configuration fields to every plugin that
// implements Configurable. Plugins not named in fields are left untouched.
func (d *Dispatcher) Configure(fields map[string]map[string]string) error {
	for _, p := range d.plugins {
		configurable, ok := p.(Configurable)
		if !ok {
			continue
		}
		if err := configurable.Configure(fields[p.Name()]); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch calls Handle on every registered Handler plugin in order,
// stopping early if a plugin intercepts the event. It reports whether the
// event was intercepted and the first error encountered, if any.
func (d *Dispatcher) Dispatch(ctx Context) (intercepted bool, err error) {
	for _, p := range d.plugins {
		handler, ok := p.(Handler)
		if !ok {
			continue
		}
		stop, handleErr := handler.Handle(ctx)
		if handleErr != nil {
			return false, handleErr
		}
		if stop {
			return true, nil
		}
	}
	return false, nil
}
