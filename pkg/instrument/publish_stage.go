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

package instrument

import "github.com/tracewireio/tracewire/pkg/trace"

// publishStage is the terminal Stage handing an event to the Trace
// Stream Server's Publisher. It always returns next=false: nothing
// downstream of publication exists in this chain today, but returning
// false rather than true documents that explicitly instead of relying on
// it being the last element of the slice.
type publishStage struct {
	NopCloser
	pub Publisher
}

func (p *publishStage) Name() string { return "publish" }

func (p *publishStage) ProcessEvent(ev *trace.Event) (bool, error) {
	if err := p.pub.Publish(ev); err != nil {
		return false, err
	}
	return false, nil
}
