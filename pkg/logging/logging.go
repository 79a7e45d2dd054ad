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

// Package logging assembles the process-wide sirupsen/logrus logger used
// by every other package (all of which log through
// `log "github.com/sirupsen/logrus"` at the package level, the exact
// import alias the teacher uses in kstreamc_windows.go and
// snapshotter_windows.go). This package only owns the one-time setup:
// level, formatter, and the optional rotating file sink; it is never
// imported by the packages doing the logging themselves, avoiding an
// import cycle back into the logrus singleton they already use directly.
package logging

import (
	"io"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process-wide logger setup.
type Config struct {
	// Level is a logrus level name ("debug", "info", "warn", "error").
	// Defaults to "info" on an unparsable value.
	Level string
	// File, if non-empty, routes warn-and-above output additionally to a
	// lumberjack-rotated file at this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures logrus's standard logger per cfg. It is safe to call
// more than once (e.g. after a config reload); each call replaces the
// previous hooks rather than stacking them.
func Setup(cfg Config) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	if cfg.File == "" {
		return
	}

	var sink io.Writer = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 50),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}

	hook := lfshook.NewHook(lfshook.WriterMap{
		log.WarnLevel:  sink,
		log.ErrorLevel: sink,
		log.FatalLevel: sink,
	}, &log.TextFormatter{FullTimestamp: true})

	log.AddHook(hook)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
