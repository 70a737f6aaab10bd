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

package resp

// ReplyBuilder 应答构建策略
//
// Reader 通过本接口定制解析产物 返回 nil 视为构建失败 (OOM)
// 实现方负责将子节点挂载到 task.Parent.Obj 指向的父 Array 上
type ReplyBuilder interface {
	// String 构建 Status / Error / String 叶子 类型取 task.Type
	String(task *ReadTask, b []byte) *Reply

	// Array 构建容量为 n 的 Array 节点
	Array(task *ReadTask, n int) *Reply

	// Integer 构建整数叶子
	Integer(task *ReadTask, v int64) *Reply

	// Nil 构建空值叶子
	Nil(task *ReadTask) *Reply
}

// replyBuilder 默认构建器 产出 *Reply 树
type replyBuilder struct{}

func (replyBuilder) attach(task *ReadTask, r *Reply) *Reply {
	if task.Parent != nil {
		parent := task.Parent.Obj
		parent.Elements = append(parent.Elements, r)
	}
	return r
}

func (b replyBuilder) String(task *ReadTask, p []byte) *Reply {
	r := &Reply{
		Type: task.Type,
		Str:  append(make([]byte, 0, len(p)), p...), // p 借用自读缓冲 必须拷贝 空载荷得到非 nil 的空切片
	}
	return b.attach(task, r)
}

func (b replyBuilder) Array(task *ReadTask, n int) *Reply {
	r := &Reply{Type: TypeArray}
	if n > 0 {
		r.Elements = make([]*Reply, 0, n)
	}
	return b.attach(task, r)
}

func (b replyBuilder) Integer(task *ReadTask, v int64) *Reply {
	r := &Reply{
		Type:    TypeInteger,
		Integer: v,
	}
	return b.attach(task, r)
}

func (b replyBuilder) Nil(task *ReadTask) *Reply {
	return b.attach(task, &Reply{Type: TypeNil})
}
