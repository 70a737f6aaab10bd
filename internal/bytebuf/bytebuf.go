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

package bytebuf

import (
	"io"
)

// Buffer 字节 FIFO 队列
//
// 读写共用一条底层切片 r 为读游标 不同于 bytes.Buffer
// Peek 不消费任何数据 调用方确认消费多少字节后再 Retrieve
// Reader 依赖这点实现 `挂起-恢复` 式的解析
type Buffer struct {
	r int
	b []byte
}

func New() *Buffer {
	return &Buffer{}
}

// NewWith 创建 Buffer 并预置内容 仅测试场景使用
func NewWith(p []byte) *Buffer {
	return &Buffer{b: append([]byte(nil), p...)}
}

// Len 返回可读字节数
func (buf *Buffer) Len() int {
	return len(buf.b) - buf.r
}

// Peek 返回可读区域 不消费数据
//
// 返回的切片在下一次 Append/Retrieve 后失效
func (buf *Buffer) Peek() []byte {
	return buf.b[buf.r:]
}

// Retrieve 消费 n 字节
func (buf *Buffer) Retrieve(n int) {
	if n >= buf.Len() {
		buf.RetrieveAll()
		return
	}
	buf.r += n
}

// RetrieveAll 消费全部可读字节
func (buf *Buffer) RetrieveAll() {
	buf.r = 0
	buf.b = buf.b[:0]
}

// Append 追加数据
func (buf *Buffer) Append(p []byte) {
	buf.compact()
	buf.b = append(buf.b, p...)
}

// WriteString 追加字符串
func (buf *Buffer) WriteString(s string) {
	buf.compact()
	buf.b = append(buf.b, s...)
}

// compact 读游标过半时回收已消费空间 避免切片无限增长
func (buf *Buffer) compact() {
	if buf.r == 0 {
		return
	}
	if buf.r >= len(buf.b) {
		buf.RetrieveAll()
		return
	}
	if buf.r > len(buf.b)/2 {
		n := copy(buf.b, buf.b[buf.r:])
		buf.b = buf.b[:n]
		buf.r = 0
	}
}

// ReadFrom 从 r 中读取最多 limit 字节追加到可写区域
//
// 返回本次读取的字节数 n == 0 且 err == nil 不会出现
// 对端关闭时返回 (0, io.EOF)
func (buf *Buffer) ReadFrom(r io.Reader, limit int) (int, error) {
	buf.compact()

	l := len(buf.b)
	if cap(buf.b)-l < limit {
		grown := make([]byte, l, l+limit)
		copy(grown, buf.b)
		buf.b = grown
	}

	n, err := r.Read(buf.b[l : l+limit])
	if n > 0 {
		buf.b = buf.b[:l+n]
	}
	if err != nil {
		return n, err
	}
	return n, nil
}
