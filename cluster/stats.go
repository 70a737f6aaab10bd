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

package cluster

import (
	"sync"

	"github.com/respkit/respkit/internal/labels"
)

// NodeStats 单个节点的打点数据
type NodeStats struct {
	Addr      string `json:"addr"`
	Replies   uint64 `json:"replies"`
	Redirects uint64 `json:"redirects"`
}

// statsTable 节点打点表 以 label 集合的哈希为键
//
// 节点数量有限 表只增不减 避免地址字符串反复拼接比较
type statsTable struct {
	mtx   sync.Mutex
	nodes map[uint64]*NodeStats
}

func newStatsTable() *statsTable {
	return &statsTable{
		nodes: make(map[uint64]*NodeStats),
	}
}

func (t *statsTable) get(addr string) *NodeStats {
	h := labels.FromMap(map[string]string{"addr": addr}).Hash()

	t.mtx.Lock()
	defer t.mtx.Unlock()

	ns, ok := t.nodes[h]
	if !ok {
		ns = &NodeStats{Addr: addr}
		t.nodes[h] = ns
	}
	return ns
}

func (t *statsTable) incReplies(addr string) {
	ns := t.get(addr)
	t.mtx.Lock()
	ns.Replies++
	t.mtx.Unlock()
}

func (t *statsTable) incRedirects(addr string) {
	ns := t.get(addr)
	t.mtx.Lock()
	ns.Redirects++
	t.mtx.Unlock()
}

func (t *statsTable) snapshot() []NodeStats {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	nodes := make([]NodeStats, 0, len(t.nodes))
	for _, ns := range t.nodes {
		nodes = append(nodes, *ns)
	}
	return nodes
}

// Stats 协调器运行时快照
type Stats struct {
	Connections int         `json:"connections"`
	Pending     int         `json:"pending"`
	Nodes       []NodeStats `json:"nodes"`
}

// Stats 汇总当前所有链接的运行状态
func (h *Hiredis) Stats() Stats {
	h.mtx.Lock()
	var pending int
	for _, ac := range h.contexts {
		pending += ac.PendingLen()
	}
	n := len(h.contexts)
	h.mtx.Unlock()

	return Stats{
		Connections: n,
		Pending:     pending,
		Nodes:       h.stats.snapshot(),
	}
}
