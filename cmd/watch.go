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
	"time"

	"github.com/spf13/cobra"

	"github.com/respkit/respkit/async"
	"github.com/respkit/respkit/cluster"
	"github.com/respkit/respkit/common"
	"github.com/respkit/respkit/confengine"
	"github.com/respkit/respkit/internal/sigs"
	"github.com/respkit/respkit/logger"
	"github.com/respkit/respkit/resp"
	"github.com/respkit/respkit/server"
)

type watchCmdConfig struct {
	Logger   logger.Options `config:"logger"`
	Nodes    []string       `config:"nodes"`
	Cluster  common.Options `config:"cluster"`
	Interval time.Duration  `config:"interval"`
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep pipelined connections to the given nodes and export metrics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(watchConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		config := watchCmdConfig{Interval: 5 * time.Second}
		if err := cfg.Unpack(&config); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unpack config: %v\n", err)
			os.Exit(1)
		}
		if len(config.Nodes) == 0 {
			fmt.Fprintf(os.Stderr, "no nodes configured\n")
			os.Exit(1)
		}
		logger.SetOptions(config.Logger)

		if ok, err := config.Cluster.GetBool("clusterMode"); err == nil && !ok {
			logger.Warnf("cluster mode disabled, MOVED/ASK errors will reach callers untouched")
		}

		h, err := cluster.NewFromOptions(config.Cluster)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create coordinator: %v\n", err)
			os.Exit(1)
		}
		for _, node := range config.Nodes {
			if err := h.Connect(node); err != nil {
				logger.Errorf("failed to connect node %s: %v", node, err)
			}
		}

		srv, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
			os.Exit(1)
		}
		if srv != nil {
			srv.RegisterStatsRoute(func() any { return h.Stats() })
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					logger.Errorf("server exited: %v", err)
				}
			}()
		}

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		terminate := sigs.Terminate()

		onPong := func(_ *async.Context, reply *resp.Reply, privdata any) {
			if reply.Type == resp.TypeError {
				logger.Warnf("node answered error: %s", reply.Text())
			}
		}

		for {
			select {
			case <-ticker.C:
				if err := h.Command(onPong, nil, "PING"); err != nil {
					logger.Warnf("ping dispatch failed: %v", err)
				}

			case <-terminate:
				if srv != nil {
					_ = srv.Close()
				}
				_ = h.Close()
				_ = logger.Sync()
				return
			}
		}
	},
	Example: "# respkit watch --config respkit.yaml",
}

var watchConfigPath string

func init() {
	watchCmd.Flags().StringVar(&watchConfigPath, "config", "respkit.yaml", "Configuration file path")
	rootCmd.AddCommand(watchCmd)
}
