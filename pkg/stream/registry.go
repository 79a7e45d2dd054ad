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

package stream

import "sync"

// registry is the RWMutex-guarded subscriber set, grounded on the
// teacher's ps.Snapshotter map discipline: reads (fan-out) take the read
// lock, add/remove take the write lock, and the critical sections stay
// short enough that Publish never meaningfully contends with Accept.
type registry struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]*subscriber, 8)}
}

func (r *registry) add(s *subscriber) {
	r.mu.Lock()
	r.subs[s.id] = s
	r.mu.Unlock()
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// snapshot returns every currently-registered subscriber. The caller
// must not mutate the slice's backing subscribers' identity, only send
// to them.
func (r *registry) snapshot() []*subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
