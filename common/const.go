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

package common

const (
	// App 应用程序名称
	App = "respkit"

	// Version 应用程序版本
	Version = "v0.1.0"

	// ReadBlockSize 单次从 socket 读取的最大字节数
	//
	// Redis 单个 value 的上限远超此数值 但一次性为每条链接分配过大的
	// 读缓冲会造成过多的开销 读取不足时由 Reader 挂起解析等待下一轮数据
	ReadBlockSize = 16384
)
