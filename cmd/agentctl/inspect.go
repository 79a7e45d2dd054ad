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

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tracewireio/tracewire/pkg/finalize"
	"github.com/tracewireio/tracewire/pkg/report"
)

func newInspectCmd() *cobra.Command {
	var deadCode bool
	cmd := &cobra.Command{
		Use:   "inspect <session-file>",
		Short: "Pretty-print a finalized session file",
		Long: "inspect loads a session file written by the Session Finalizer (plain\n" +
			"or .zst-compressed) and renders its performance summary, optionally\n" +
			"alongside dead-code candidates, as a table.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectSession(cmd, args[0], deadCode)
		},
	}
	cmd.Flags().BoolVar(&deadCode, "dead-code", false, "also list registered methods never called as a descendant")
	return cmd
}

func inspectSession(cmd *cobra.Command, path string, showDeadCode bool) error {
	doc, err := finalize.Load(afero.NewOsFs(), path)
	if err != nil {
		return fmt.Errorf("agentctl: load session file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s (%s, pid %d): %s call(s), %s method(s) registered\n\n",
		doc.SessionID, doc.Language, doc.ProcessID,
		humanize.Comma(doc.TotalCalls), humanize.Comma(int64(len(doc.RegisteredMethods))))

	summary := report.BuildPerformanceSummary(doc)
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"module", "function", "calls", "total ms", "slowest ms"})
	for _, m := range summary.Methods {
		t.AppendRow(table.Row{m.Module, m.Function, m.CallCount,
			fmt.Sprintf("%.2f", m.TotalMs), fmt.Sprintf("%.2f", m.SlowestMs)})
	}
	t.Render()

	if showDeadCode {
		candidates := report.FindDeadCodeCandidates(doc)
		fmt.Fprintf(out, "\n%d dead-code candidate(s):\n", len(candidates))
		for _, c := range candidates {
			fmt.Fprintf(out, "  %s.%s\n", c.Module, c.Function)
		}
	}
	return nil
}
