/*
 * Copyright 2024 by the tracewire authors
 * https://tracewire.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bootstrap is the Go analogue of spec.md §6's "well-known
// side-effect module auto-loaded by the runtime": a host imports it
// blank (`import _ "github.com/tracewireio/tracewire/pkg/bootstrap"`)
// and its init() reads the <AGENT>_* environment variables via
// pkg/config and, if enabled, wires and enables an Instrumentor for the
// lifetime of the process. A real dynamic-language agent installs this
// by prepending a project-local directory to the module search path;
// Go has no such hook, so an explicit blank import is the closest
// faithful equivalent — still zero call-site changes to the traced
// program itself, which is the property spec.md §6 is actually after.
package bootstrap

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/tracewireio/tracewire/pkg/config"
	"github.com/tracewireio/tracewire/pkg/finalize"
	"github.com/tracewireio/tracewire/pkg/instrument"
	"github.com/tracewireio/tracewire/pkg/stream"
	"github.com/tracewireio/tracewire/pkg/trace"
)

// EnvPrefix is the environment variable prefix bootstrap binds, e.g.
// "TRACEWIRE" reads TRACEWIRE_ENABLED, TRACEWIRE_TRACE_DIR, ...
const EnvPrefix = "TRACEWIRE"

// DefaultPort is the stream server port used when <AGENT>_SOCKET_PORT is
// unset, per spec.md §6 ("5678 for Python runtime").
const DefaultPort = 5678

// Active is the process-singleton Instrumentor bootstrap installed, or
// nil if <AGENT>_ENABLED was not "1". A host integration's Enter calls
// should no-op when Active is nil.
var Active *instrument.Instrumentor

var streamServer *stream.Server

func init() {
	cfg := config.Load(EnvPrefix, DefaultPort)
	if !cfg.Enabled {
		return
	}

	fin := finalize.New(afero.NewOsFs(), cfg.TraceDir, false)

	srv := stream.New(stream.Config{
		Port:              cfg.SocketPort,
		Policy:            cfg.Backpressure,
		Registry:          registrySnapshot,
		OnFinalizeRequest: func() { _ = Shutdown() },
	})
	if err := srv.Start(); err != nil {
		log.WithError(err).Error("bootstrap: failed to start stream server, tracing disabled")
		return
	}
	streamServer = srv

	in := instrument.New(instrument.Config{
		Language:   "go",
		ProcessID:  os.Getpid(),
		SelfModule: "github.com/tracewireio/tracewire/",
		Budget: instrument.Budget{
			MaxCalls: cfg.MaxCalls,
			MaxDepth: cfg.MaxDepth,
		},
		Policy:    cfg.PolicyConfig("github.com/tracewireio/tracewire/"),
		Publisher: srv,
		Finalizer: fin,
	})

	if err := in.Enable("go", os.Getpid(), 0); err != nil {
		log.WithError(err).Error("bootstrap: failed to enable instrumentor")
		_ = srv.Close()
		streamServer = nil
		return
	}
	Active = in
	log.WithField("port", strconv.Itoa(cfg.SocketPort)).Info("bootstrap: tracing enabled")
}

func registrySnapshot() *trace.Event {
	if Active == nil || Active.Session() == nil {
		return &trace.Event{Type: trace.FunctionRegistry}
	}
	sess := Active.Session()
	return &trace.Event{
		Type:              trace.FunctionRegistry,
		SessionID:         sess.ID(),
		ProcessID:         sess.ProcessID(),
		Language:          sess.Language(),
		RegisteredMethods: sess.RegisteredMethods(),
	}
}

// Shutdown disables the active Instrumentor (if any). Disable itself
// closes the stream server before invoking the Finalizer, so subscribers
// see a clean EOF ahead of the session file being written; Shutdown's own
// Close of streamServer afterwards is a second, no-op close. Safe to call
// even if bootstrap never activated tracing.
func Shutdown() error {
	if Active == nil {
		return nil
	}
	err := Active.Disable()
	if streamServer != nil {
		_ = streamServer.Close()
	}
	return err
}
