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
	"fmt"
	"net"
	"os"
	"time"

	"github.com/enescakir/emoji"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tracewireio/tracewire/pkg/config"
)

func newDoctorCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check an environment's tracewire configuration before attaching a workload",
		Long: "doctor loads <prefix>_* environment variables the same way bootstrap\n" +
			"does, reports the resolved Config, and flags problems a misconfigured\n" +
			"deployment would otherwise only discover at runtime: the socket port\n" +
			"already in use, or a trace directory that cannot be created.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, prefix)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "TRACEWIRE", "environment variable prefix to check")
	return cmd
}

func runDoctor(cmd *cobra.Command, prefix string) error {
	out := cmd.OutOrStdout()
	cfg := config.Load(prefix, 5678)

	status := func(ok bool) string {
		if ok {
			return emoji.Sprintf(":white_check_mark:")
		}
		return emoji.Sprintf(":x:")
	}

	fmt.Fprintf(out, "%s enabled=%t\n", status(cfg.Enabled), cfg.Enabled)
	if !cfg.Enabled {
		fmt.Fprintln(out, emoji.Sprintf(":warning: %s_ENABLED is not \"1\"; tracing will not start", prefix))
	}

	portFree := checkPortFree(cfg.SocketPort)
	fmt.Fprintf(out, "%s socket_port=%d free=%t\n", status(portFree), cfg.SocketPort, portFree)

	dirOK := checkTraceDirWritable(cfg.TraceDir)
	fmt.Fprintf(out, "%s trace_dir=%s writable=%t\n", status(dirOK), cfg.TraceDir, dirOK)

	fmt.Fprintln(out, emoji.Sprintf(":information: max_calls=%d max_depth=%d sample_rate=%d backpressure=%s",
		cfg.MaxCalls, cfg.MaxDepth, cfg.SampleRate, cfg.Backpressure))

	if len(cfg.Includes) > 0 {
		fmt.Fprintln(out, emoji.Sprintf(":information: modules=%v", cfg.Includes))
	}
	if len(cfg.Excludes) > 0 {
		fmt.Fprintln(out, emoji.Sprintf(":information: exclude=%v", cfg.Excludes))
	}

	if !portFree || !dirOK {
		return fmt.Errorf("agentctl: doctor found problems, see above")
	}
	return nil
}

func checkPortFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func checkTraceDirWritable(dir string) bool {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := fmt.Sprintf("%s/.agentctl-doctor-%d", dir, time.Now().UnixNano()%1_000_000)
	if err := afero.WriteFile(fs, probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}
