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
	"io"
	"net"
	"strings"
	"time"

	"github.com/enescakir/emoji"
	"github.com/spf13/cobra"

	"github.com/tracewireio/tracewire/pkg/trace"
)

func newTailCmd() *cobra.Command {
	var (
		host    string
		finSig  bool
		pauseAt int
	)
	cmd := &cobra.Command{
		Use:   "tail [port]",
		Short: "Connect to a running agent's stream socket and print events",
		Long: "tail is a netcat-equivalent reference subscriber: it dials the\n" +
			"Trace Stream Server's loopback port, reads the function_registry\n" +
			"snapshot sent on connect, then prints every call/return/exception\n" +
			"event as it arrives until the connection closes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailStream(cmd, net.JoinHostPort(host, args[0]), finSig, pauseAt)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "host the stream server is bound to")
	cmd.Flags().BoolVar(&finSig, "finalize", false, "send a finalize control message once connected")
	cmd.Flags().IntVar(&pauseAt, "pause-after", 0, "send a pause control message after N events (0 disables)")
	return cmd
}

func tailStream(cmd *cobra.Command, addr string, sendFinalize bool, pauseAfter int) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("agentctl: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if sendFinalize {
		fmt.Fprintln(conn, `{"type":"finalize"}`)
	}

	out := cmd.OutOrStdout()
	dec := trace.NewDecoder(conn)
	n := 0
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			fmt.Fprintln(out, "connection closed by server")
			return nil
		}
		if err != nil {
			return fmt.Errorf("agentctl: decode event: %w", err)
		}
		printEvent(out, ev)
		n++
		if pauseAfter > 0 && n == pauseAfter {
			fmt.Fprintln(conn, `{"type":"pause"}`)
		}
	}
}

func printEvent(out io.Writer, ev *trace.Event) {
	var shortcode string
	switch ev.Type {
	case trace.Call:
		shortcode = ":arrow_right:"
	case trace.Return:
		shortcode = ":white_check_mark:"
	case trace.Exception:
		shortcode = ":x:"
	case trace.FunctionRegistry:
		fmt.Fprintln(out, emoji.Sprintf(":file_cabinet: registry snapshot: %d method(s) known", len(ev.RegisteredMethods)))
		return
	default:
		shortcode = ":package:"
	}
	indent := strings.Repeat("  ", ev.Depth)
	line := emoji.Sprintf("%s%s %s %s.%s (call_id=%s)", indent, shortcode, ev.Type, ev.Module, ev.Function, ev.CallID)
	fmt.Fprintln(out, line)
}
