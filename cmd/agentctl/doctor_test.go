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
	"strconv"
	"testing"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorReportsFreePortAndWritableDir(t *testing.T) {
	dir := t.TempDir()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	os.Setenv("TW_DOCTOR_TEST_ENABLED", "1")
	os.Setenv("TW_DOCTOR_TEST_TRACE_DIR", dir)
	os.Setenv("TW_DOCTOR_TEST_SOCKET_PORT", strconv.Itoa(port))
	t.Cleanup(func() {
		os.Unsetenv("TW_DOCTOR_TEST_ENABLED")
		os.Unsetenv("TW_DOCTOR_TEST_TRACE_DIR")
		os.Unsetenv("TW_DOCTOR_TEST_SOCKET_PORT")
	})

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"doctor", "--prefix", "TW_DOCTOR_TEST"})

	err = cmd.Execute()
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "enabled=true")
	assert.Contains(t, out.String(), "free=true")
	assert.Contains(t, out.String(), "writable=true")
}

func TestCheckTraceDirWritableRejectsUnwritablePath(t *testing.T) {
	ok := checkTraceDirWritable(filepath.Join(string(os.PathSeparator), "proc", "agentctl-doctor-cannot-write"))
	assert.False(t, ok)
}

