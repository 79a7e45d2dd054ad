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

package trace

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/valyala/bytebufferpool"
)

// pool backs the wait-free fast path: the Instrumentor must never
// allocate-and-block on the hot path emitting events, so the line buffer
// used to marshal each Event is borrowed from a pool instead of being
// allocated per call, the same trade-off the teacher's kstream consumer
// makes with its buffered channels.
var pool bytebufferpool.Pool

// EncodeLine marshals e as a single newline-terminated JSON line and
// writes it to w. The buffer used for marshaling is returned to the pool
// before EncodeLine returns.
func EncodeLine(w io.Writer, e *Event) error {
	buf := pool.Get()
	defer pool.Put(buf)

	if err := json.NewEncoder(buf).Encode(e); err != nil {
		return err
	}
	_, err := w.Write(buf.B)
	return err
}

// Marshal returns e encoded as a single newline-terminated JSON line,
// for callers that need the bytes rather than a direct write.
func Marshal(e *Event) ([]byte, error) {
	buf := pool.Get()
	defer pool.Put(buf)

	if err := json.NewEncoder(buf).Encode(e); err != nil {
		return nil, err
	}
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out, nil
}

// Decoder reads newline-terminated Event records from a stream, e.g. a
// subscriber socket or a recorded session file.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r with a line-oriented Event decoder.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &Decoder{scanner: s}
}

// Next reads and parses the next line. It returns io.EOF when the stream
// is exhausted.
func (d *Decoder) Next() (*Event, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var e Event
	if err := json.Unmarshal(d.scanner.Bytes(), &e); err != nil {
		return nil, err
	}
	return &e, nil
}
