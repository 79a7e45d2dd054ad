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
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tracewireio/tracewire/pkg/finalize"
	"github.com/tracewireio/tracewire/pkg/instrument"
	"github.com/tracewireio/tracewire/pkg/policy"
	"github.com/tracewireio/tracewire/pkg/stream"
)

func newRunCmd() *cobra.Command {
	var (
		port     int
		traceDir string
		depth    int
		calls    int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a small instrumented sample program end to end",
		Long: "run builds an Instrumentor, a Trace Stream Server, and a Session\n" +
			"Finalizer exactly as a host integration would, then exercises a tiny\n" +
			"recursive sample workload through Enter/exit so the whole pipeline can\n" +
			"be observed without writing a traced program of your own.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd, port, traceDir, depth, calls)
		},
	}
	cmd.Flags().IntVar(&port, "port", 5678, "stream server loopback port")
	cmd.Flags().StringVar(&traceDir, "trace-dir", "./traces", "directory session files are written to")
	cmd.Flags().IntVar(&depth, "depth", 5, "recursion depth of the sample workload")
	cmd.Flags().IntVar(&calls, "calls", 200, "approximate number of calls the sample workload makes")
	return cmd
}

func runSample(cmd *cobra.Command, port int, traceDir string, depth, calls int) error {
	fin := finalize.New(afero.NewOsFs(), traceDir, false)

	srv := stream.New(stream.Config{Port: port, Policy: stream.DropEvent})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("agentctl: start stream server: %w", err)
	}
	defer srv.Close()

	in := instrument.New(instrument.Config{
		Language:   "go",
		SelfModule: "github.com/tracewireio/tracewire/cmd/agentctl",
		Policy:     policy.Config{SampleRate: 1},
		Publisher:  srv,
		Finalizer:  fin,
	})
	if err := in.Enable("go", 0, 0); err != nil {
		return fmt.Errorf("agentctl: enable instrumentor: %w", err)
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " running sample workload..."
	sp.Start()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	made := 0
	for made < calls {
		made += sampleWork(ctx, in, rng, "handleRequest", depth)
	}

	sp.Stop()

	if err := in.Disable(); err != nil {
		return fmt.Errorf("agentctl: disable instrumentor: %w", err)
	}

	sess := in.Session()
	fmt.Fprintf(cmd.OutOrStdout(), "session %s finalized: %s calls recorded, written under %s\n",
		sess.ID(), humanize.Comma(sess.TotalCalls()), traceDir)
	return nil
}

// sampleWork is a deliberately uninteresting recursive function, traced
// through Enter/exit exactly as a host integration's generated shim
// would call it at the top of every function body. It returns the
// number of calls it made, itself included.
func sampleWork(ctx context.Context, in *instrument.Instrumentor, rng *rand.Rand, name string, depth int) int {
	ctx, done := in.Enter(ctx, "cmd/agentctl/sample", name, "sample.go", 42, "func()")
	calls := 1
	if depth > 0 && rng.Intn(3) != 0 {
		calls += sampleWork(ctx, in, rng, childName(name), depth-1)
	}
	time.Sleep(time.Duration(rng.Intn(500)) * time.Microsecond)
	done("", "")
	return calls
}

func childName(parent string) string {
	return parent + ".child"
}
