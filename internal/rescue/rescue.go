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

package rescue

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/respkit/respkit/common"
	"github.com/respkit/respkit/logger"
)

var panicTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "panic_total",
		Help:      "Panic total",
	},
	[]string{"loop"},
)

// HandleCrash 捕获 goroutine panic 打点并记录堆栈
//
// 每条链接都有独立的读写 goroutine loop 维度用于区分 panic 来源
func HandleCrash(loop string) {
	r := recover()
	if r == nil {
		return
	}
	panicTotal.WithLabelValues(loop).Inc()

	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	logger.Errorf("Observed a panic in %s: %v\n%s", loop, r, stacktrace)
}
