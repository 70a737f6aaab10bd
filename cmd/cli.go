// Copyright 2026 The respkit Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/respkit/respkit/client"
	"github.com/respkit/respkit/resp"
)

type cliCmdConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

var cliConfig cliCmdConfig

var cliCmd = &cobra.Command{
	Use:   "cli <command> [arg...]",
	Short: "Send one command over a blocking connection and print the reply",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := client.ConnectWithTimeout(cliConfig.Host, cliConfig.Port, cliConfig.Timeout)
		if c.Err() != resp.CodeNone {
			fmt.Fprintf(os.Stderr, "failed to connect: %s\n", c.ErrString())
			os.Exit(1)
		}
		defer c.Close()

		argv := make([][]byte, 0, len(args))
		for _, a := range args {
			argv = append(argv, []byte(a))
		}

		reply, err := c.CommandArgv(argv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(sprintReply(reply, 0))
	},
	Example: "# respkit cli --host 127.0.0.1 --port 6379 GET mykey",
}

// sprintReply 以 redis-cli 风格渲染应答树
func sprintReply(reply *resp.Reply, depth int) string {
	indent := strings.Repeat("  ", depth)
	switch reply.Type {
	case resp.TypeStatus:
		return indent + reply.Text() + "\n"
	case resp.TypeError:
		return indent + "(error) " + reply.Text() + "\n"
	case resp.TypeInteger:
		return indent + "(integer) " + strconv.FormatInt(reply.Integer, 10) + "\n"
	case resp.TypeString:
		return indent + strconv.Quote(reply.Text()) + "\n"
	case resp.TypeNil:
		return indent + "(nil)\n"
	case resp.TypeArray:
		if len(reply.Elements) == 0 {
			return indent + "(empty array)\n"
		}
		var sb strings.Builder
		for i, e := range reply.Elements {
			sb.WriteString(fmt.Sprintf("%s%d) ", indent, i+1))
			sb.WriteString(strings.TrimLeft(sprintReply(e, depth+1), " "))
		}
		return sb.String()
	}
	return indent + "(unknown)\n"
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trip latency with PING",
	Run: func(cmd *cobra.Command, args []string) {
		c := client.ConnectWithTimeout(cliConfig.Host, cliConfig.Port, cliConfig.Timeout)
		if c.Err() != resp.CodeNone {
			fmt.Fprintf(os.Stderr, "failed to connect: %s\n", c.ErrString())
			os.Exit(1)
		}
		defer c.Close()

		start := time.Now()
		reply, err := c.Command("PING")
		if err != nil {
			fmt.Fprintf(os.Stderr, "ping failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s (%s)\n", reply.Text(), time.Since(start))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{cliCmd, pingCmd} {
		cmd.Flags().StringVar(&cliConfig.Host, "host", "127.0.0.1", "Server host")
		cmd.Flags().IntVar(&cliConfig.Port, "port", 6379, "Server port")
		cmd.Flags().DurationVar(&cliConfig.Timeout, "timeout", 3*time.Second, "Connect timeout")
	}
	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(pingCmd)
}
