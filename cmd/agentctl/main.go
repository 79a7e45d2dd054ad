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

// Command agentctl is the reference operator CLI for the agent: it can
// drive a small instrumented sample to completion, tail a running
// agent's stream socket, pretty-print a finalized session file, and
// sanity-check an environment's configuration before attaching a real
// workload. None of its subcommands are required by a host integration
// -- they exist the way fibratus's own cmd ships alongside the kernel
// tracer, as the thing an operator reaches for first.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Operator CLI for the tracewire agent",
		Long: "agentctl drives, inspects, and tails a tracewire agent session.\n" +
			"It is a reference client, not part of the agent's zero-code contract:\n" +
			"a host program never needs to run it to be traced.",
		SilenceUsage: true,
	}
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTailCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newDoctorCmd())
	return cmd
}
