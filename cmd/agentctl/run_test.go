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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSampleWritesSessionFile(t *testing.T) {
	dir := t.TempDir()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := newRunCmd()
	cmd.SetOut(&out)

	err = runSample(cmd, port, dir, 3, 30)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "finalized")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.Contains(t, filepath.Ext(entries[0].Name()), "json")
}
