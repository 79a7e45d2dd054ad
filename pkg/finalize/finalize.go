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

// Package finalize implements the Session Finalizer from spec.md §4.5:
// write a durable, versioned artifact for a frozen Session. Grounded on
// the teacher's config package's afero-backed filesystem discipline
// (config reads go through an abstracted fs so tests never touch real
// disk) and on ps.Snapshotter's "write under lock, rename into place"
// instinct, here applied to a single whole-session write rather than
// incremental process snapshots.
package finalize

import (
	"encoding/json"
	"expvar"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/valyala/gozstd"

	"github.com/tracewireio/tracewire/pkg/session"
	"github.com/tracewireio/tracewire/pkg/trace"
)

// schemaVersion is written into every session file and checked by Load,
// so a future incompatible layout change can be detected instead of
// silently misparsed.
var schemaVersion = version.Must(version.NewVersion("1.0.0"))

var sessionsFinalized = expvar.NewInt("finalize.sessions.written")

// minSupportedVersion is the minimum schema version Load accepts.
var minSupportedVersion = version.Must(version.NewVersion("1.0.0"))

// Document is the on-disk shape of a finalized session, keyed per
// spec.md §6's session file layout: session_id, language, process_id,
// started_at, ended_at, total_calls, registered_methods, calls. Calls is
// the ordered sequence of closed Call Records, rendered as wire
// trace.Events so the file and the stream share one record shape.
type Document struct {
	SchemaVersion     string            `json:"schema_version"`
	SessionID         string            `json:"session_id"`
	Language          string            `json:"language"`
	ProcessID         int               `json:"process_id"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           time.Time         `json:"ended_at"`
	TotalCalls        int64             `json:"total_calls"`
	RegisteredMethods []trace.MethodRef `json:"registered_methods"`
	CompletedRecords  []*trace.Event    `json:"calls"`
}

// Finalizer writes Documents to an afero.Fs, atomically and idempotently.
type Finalizer struct {
	fs        afero.Fs
	outputDir string
	compress  bool

	mu   sync.Mutex
	done map[string]bool
}

// New constructs a Finalizer rooted at outputDir on fs. Pass
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
// compress enables zstd compression of the written file's bytes via
// valyala/gozstd.
func New(fs afero.Fs, outputDir string, compress bool) *Finalizer {
	return &Finalizer{fs: fs, outputDir: outputDir, compress: compress, done: make(map[string]bool)}
}

// Finalize writes session's Document. A second call for the same
// session id is a no-op, satisfying spec.md §4.5's idempotence
// requirement independent of whether Session.Freeze itself was already
// called by the caller.
func (f *Finalizer) Finalize(sess *session.Session) error {
	f.mu.Lock()
	if f.done[sess.ID()] {
		f.mu.Unlock()
		return nil
	}
	f.done[sess.ID()] = true
	f.mu.Unlock()

	sess.Freeze()

	if err := f.fs.MkdirAll(f.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "finalize: ensure output dir")
	}

	doc := f.buildDocument(sess)
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "finalize: marshal session document")
	}

	ext := ".json"
	if f.compress {
		payload = gozstd.Compress(nil, payload)
		ext = ".json.zst"
	}

	name := fmt.Sprintf("session_%s%s", sess.ID(), ext)
	if err := f.writeAtomic(name, payload); err != nil {
		return err
	}
	sessionsFinalized.Add(1)
	return nil
}

func (f *Finalizer) buildDocument(sess *session.Session) Document {
	records := sess.CompletedRecords()
	events := make([]*trace.Event, 0, len(records))
	for _, r := range records {
		ev := r.ToCallEvent(sess.StartedAt(), sess.ProcessID(), sess.Language())
		ev.DurationMs = r.DurationMs()
		ev.ExceptionKind = r.ExceptionKind
		ev.ExceptionMessage = r.ExceptionMessage
		events = append(events, ev)
	}
	return Document{
		SchemaVersion:     schemaVersion.String(),
		SessionID:         sess.ID(),
		Language:          sess.Language(),
		ProcessID:         sess.ProcessID(),
		StartedAt:         sess.StartedAt(),
		EndedAt:           sess.EndedAt(),
		TotalCalls:        sess.TotalCalls(),
		CompletedRecords:  events,
		RegisteredMethods: sess.RegisteredMethods(),
	}
}

// writeAtomic writes payload to a temp file under outputDir then renames
// it into place, per spec.md §4.5 ("write to a temp name then rename").
func (f *Finalizer) writeAtomic(name string, payload []byte) error {
	final := filepath.Join(f.outputDir, name)
	tmp := final + ".tmp"

	if err := afero.WriteFile(f.fs, tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "finalize: write temp file")
	}
	if err := f.fs.Rename(tmp, final); err != nil {
		return errors.Wrap(err, "finalize: rename into place")
	}
	return nil
}

// Load reads and schema-checks a previously finalized Document. A
// ".json.zst" path is transparently zstd-decompressed first.
func Load(fs afero.Fs, path string) (*Document, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "finalize: read session file")
	}
	if filepath.Ext(path) == ".zst" {
		raw, err = gozstd.Decompress(nil, raw)
		if err != nil {
			return nil, errors.Wrap(err, "finalize: decompress session file")
		}
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "finalize: unmarshal session file")
	}
	v, err := version.NewVersion(doc.SchemaVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "finalize: invalid schema_version %q", doc.SchemaVersion)
	}
	if v.LessThan(minSupportedVersion) {
		return nil, errors.Errorf("finalize: session file schema %s is older than the minimum supported %s", v, minSupportedVersion)
	}
	return &doc, nil
}
