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

// Package config binds the environment variables from spec.md §6 to a
// typed Config, the Go analogue of the teacher's own env/flag-driven
// config.Config. spf13/viper does the binding, spf13/cast the permissive
// string->int coercion (ENABLED is compared against "1" exactly), so a
// malformed integer degrades to its
// default with a logged warning rather than a startup failure, per
// spec.md §7 ("bad configuration values are logged and defaulted, never
// silently ignored, never fatal").
package config

import (
	"strings"

	"github.com/spf13/cast"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tracewireio/tracewire/pkg/policy"
	"github.com/tracewireio/tracewire/pkg/stream"
)

// Defaults mirror spec.md §6's table.
const (
	DefaultTraceDir   = "./traces"
	DefaultMaxCalls   = 100_000
	DefaultMaxDepth   = 1_000
	DefaultSampleRate = 1
)

// Config is the fully-resolved runtime configuration for one agent
// instance.
type Config struct {
	Enabled      bool
	TraceDir     string
	SocketPort   int
	Includes     []string
	Excludes     []string
	MaxCalls     int64
	MaxDepth     int
	SampleRate   int
	Backpressure stream.BackpressurePolicy
}

// Load binds <prefix>_* environment variables (e.g. prefix "TRACEWIRE"
// reads TRACEWIRE_ENABLED, TRACEWIRE_TRACE_DIR, ...) into a Config.
// defaultPort is the language-runtime-specific default socket port
// spec.md §6 calls out (5678 for Python, 5679 for JVM, ...).
func Load(prefix string, defaultPort int) Config {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()

	v.SetDefault("enabled", false)
	v.SetDefault("trace_dir", DefaultTraceDir)
	v.SetDefault("socket_port", defaultPort)
	v.SetDefault("modules", "")
	v.SetDefault("exclude", "")
	v.SetDefault("max_calls", DefaultMaxCalls)
	v.SetDefault("max_depth", DefaultMaxDepth)
	v.SetDefault("sample_rate", DefaultSampleRate)
	v.SetDefault("backpressure", "drop_event")

	cfg := Config{
		Enabled:      v.GetString("enabled") == "1",
		TraceDir:     v.GetString("trace_dir"),
		SocketPort:   intOrDefault(v.Get("socket_port"), defaultPort, "socket_port"),
		Includes:     splitPrefixes(v.GetString("modules")),
		Excludes:     splitPrefixes(v.GetString("exclude")),
		MaxCalls:     int64(intOrDefault(v.Get("max_calls"), DefaultMaxCalls, "max_calls")),
		MaxDepth:     intOrDefault(v.Get("max_depth"), DefaultMaxDepth, "max_depth"),
		SampleRate:   intOrDefault(v.Get("sample_rate"), DefaultSampleRate, "sample_rate"),
		Backpressure: parseBackpressure(v.GetString("backpressure")),
	}
	if cfg.SampleRate < 1 {
		log.WithField("sample_rate", cfg.SampleRate).Warn("config: sample_rate must be >= 1, defaulting")
		cfg.SampleRate = DefaultSampleRate
	}
	return cfg
}

func intOrDefault(v interface{}, def int, field string) int {
	n, err := cast.ToIntE(v)
	if err != nil {
		log.WithError(err).WithField("field", field).Warn("config: invalid integer value, using default")
		return def
	}
	return n
}

func splitPrefixes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBackpressure(s string) stream.BackpressurePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disconnect_subscriber":
		return stream.DisconnectSubscriber
	case "drop_event", "":
		return stream.DropEvent
	default:
		log.WithField("backpressure", s).Warn("config: unrecognized backpressure policy, defaulting to drop_event")
		return stream.DropEvent
	}
}

// PolicyConfig adapts Config into a policy.Config for the Instrumentor.
func (c Config) PolicyConfig(selfModule string) policy.Config {
	return policy.Config{
		Includes:        c.Includes,
		Excludes:        c.Excludes,
		BuiltinExcludes: policy.DefaultBuiltinExcludes(selfModule),
		SampleRate:      c.SampleRate,
	}
}
