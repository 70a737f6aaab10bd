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

import (
	"fmt"
	"strconv"

	"github.com/respkit/respkit/internal/bytebuf"
)

const (
	// maxNestedDepth 任务栈栈顶下标上限 根节点之外最多 8 层帧
	//
	// 数组最多出现在根节点加 7 层嵌套 第 8 层帧只能是叶子
	maxNestedDepth = 8

	// stackDepth 任务栈深度 根节点占一帧
	stackDepth = maxNestedDepth + 1

	// compactThreshold pos 超过该阈值后才回收缓冲
	//
	// 每解析一个元素就 Retrieve 一次会频繁搬移内存 延迟回收摊平开销
	compactThreshold = 1024

	// errstrCap 错误描述的长度上限
	errstrCap = 128
)

// Reader RESP 增量解析器
//
// Reader 从共享的 bytebuf.Buffer 中消费任意前缀的 RESP 字节流
// 每次 GetReply 至多产出一棵完整的应答树 数据不足时挂起
// 解析状态记录在有界任务栈中 下一轮从栈顶恢复
//
// 从 Connection 的视角看 owner 负责向 Buffer 喂数据（feed）
// Reader 只读游标 pos 之前的字节在越过 compactThreshold 前不会被回收
//
// +-----------------+                      +-----------------+
// |     Client      |                      |      Server     |
// +-----------------+                      +-----------------+
// | *2\r\n          |  ----------------->  |                 |
// | $3\r\n          |                      |                 |
// | GET\r\n         |                      |                 |
// | $4\r\n          |                      |                 |
// | key1\r\n        |                      |                 |
// |                 |  <-----------------  | $6\r\n          |
// |                 |                      | value1\r\n      |
// +-----------------+                      +-----------------+
//
// Reader 解析的是箭头右往左的应答方向 请求方向由 FormatCommand 产出
type Reader struct {
	buf     *bytebuf.Buffer
	builder ReplyBuilder

	pos     int
	errCode Code
	errstr  string

	ridx   int
	rstack [stackDepth]ReadTask
	reply  *Reply
}

// NewReader 创建 Reader 使用默认的 *Reply 构建器
func NewReader(buf *bytebuf.Buffer) *Reader {
	return NewReaderBuilder(buf, replyBuilder{})
}

// NewReaderBuilder 创建 Reader 并指定应答构建策略
func NewReaderBuilder(buf *bytebuf.Buffer, builder ReplyBuilder) *Reader {
	return &Reader{
		buf:     buf,
		builder: builder,
		ridx:    -1,
	}
}

// Buffer 返回 Reader 持有的输入缓冲 owner 通过它喂数据
func (r *Reader) Buffer() *bytebuf.Buffer {
	return r.buf
}

// Err 返回粘滞的错误分类码
func (r *Reader) Err() Code {
	return r.errCode
}

// ErrString 返回错误描述
func (r *Reader) ErrString() string {
	return r.errstr
}

// Reset 清除错误与解析状态 复用 Reader 前必须调用
func (r *Reader) Reset() {
	r.errCode = CodeNone
	r.errstr = ""
	r.pos = 0
	r.ridx = -1
	r.reply = nil
}

// setError 记录错误并重置解析状态
//
// 错误是粘滞的 输入缓冲被整体排空 任务栈回到空闲态
func (r *Reader) setError(code Code, format string, args ...any) {
	r.buf.RetrieveAll()
	r.pos = 0
	r.ridx = -1

	s := fmt.Sprintf(format, args...)
	if len(s) > errstrCap {
		s = s[:errstrCap]
	}
	r.errCode = code
	r.errstr = s
}

func (r *Reader) setErrorProtocolByte(b byte) {
	r.setError(CodeProtocol, "Protocol error, got %s as reply type byte", strconv.Quote(string([]byte{b})))
}

// seekNewline 在 s 中定位首个 CRLF 返回 '\r' 的下标
//
// 载荷是二进制安全的 不能用 C 字符串式搜索 窗口为 len-1
// 保证 '\r' 之后还有一个字节可以验证 '\n'
func seekNewline(s []byte) int {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '\r' && s[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// parseInt 解析十进制整数 允许一个前导 '+' 或 '-'
//
// 出现任何非数字字符视为解析失败 由调用方按条目类型上报协议错误
func parseInt(s []byte) (int64, bool) {
	if len(s) == 0 {
		return 0, false
	}

	var mult int64 = 1
	switch s[0] {
	case '-':
		mult = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, false
	}

	var v int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	return mult * v, true
}

// readLine 读取一行 CRLF 结尾的数据 返回不含 CRLF 的内容
func (r *Reader) readLine() ([]byte, bool) {
	p := r.buf.Peek()[r.pos:]
	idx := seekNewline(p)
	if idx < 0 {
		return nil, false
	}
	r.pos += idx + 2 // skip \r\n
	return p[:idx], true
}

// readBytes 读取定长字节
func (r *Reader) readBytes(n int) ([]byte, bool) {
	if r.buf.Len()-r.pos < n {
		return nil, false
	}
	p := r.buf.Peek()[r.pos : r.pos+n]
	r.pos += n
	return p, true
}

// processLineItem 解析 +/-/: 三类单行条目
func (r *Reader) processLineItem() bool {
	cur := &r.rstack[r.ridx]

	line, ok := r.readLine()
	if !ok {
		return false
	}

	var obj *Reply
	if cur.Type == TypeInteger {
		v, ok := parseInt(line)
		if !ok {
			r.setError(CodeProtocol, "Bad integer value")
			return false
		}
		obj = r.builder.Integer(cur, v)
	} else {
		// Type will be error or status.
		obj = r.builder.String(cur, line)
	}

	if obj == nil {
		r.setError(CodeOOM, "Out of memory")
		return false
	}

	if r.ridx == 0 {
		r.reply = obj
	}
	r.moveToNextTask()
	return true
}

// processBulkItem 解析 "$" 多行字符串
//
// 长度为负时产出 Nil 否则要求缓冲中已有 length+2 字节才消费
func (r *Reader) processBulkItem() bool {
	cur := &r.rstack[r.ridx]

	p := r.buf.Peek()[r.pos:]
	idx := seekNewline(p)
	if idx < 0 {
		return false
	}

	length, ok := parseInt(p[:idx])
	if !ok {
		r.setError(CodeProtocol, "Bad bulk string length")
		return false
	}

	var obj *Reply
	bytelen := idx + 2 // include \r\n
	if length < 0 {
		// The nil object can always be created.
		obj = r.builder.Nil(cur)
		r.pos += bytelen
	} else {
		// Only continue when the buffer contains the entire bulk item.
		total := bytelen + int(length) + 2
		if total > len(p) {
			return false
		}
		obj = r.builder.String(cur, p[bytelen:bytelen+int(length)])
		r.pos += total
	}

	if obj == nil {
		r.setError(CodeOOM, "Out of memory")
		return false
	}

	if r.ridx == 0 {
		r.reply = obj
	}
	r.moveToNextTask()
	return true
}

// processMultiBulkItem 解析 "*" 数组条目
//
// 声明长度 -1 产出 Nil 0 产出空数组 其余情况压入子帧继续
func (r *Reader) processMultiBulkItem() bool {
	if r.ridx == maxNestedDepth {
		r.setError(CodeProtocol, "No support for nested multi bulk replies with depth > 7")
		return false
	}

	cur := &r.rstack[r.ridx]

	line, ok := r.readLine()
	if !ok {
		return false
	}

	elements, ok := parseInt(line)
	if !ok || elements < -1 {
		r.setError(CodeProtocol, "Bad multi bulk length")
		return false
	}

	root := r.ridx == 0

	var obj *Reply
	switch {
	case elements == -1:
		obj = r.builder.Nil(cur)
		if obj == nil {
			r.setError(CodeOOM, "Out of memory")
			return false
		}
		r.moveToNextTask()

	case elements == 0:
		obj = r.builder.Array(cur, 0)
		if obj == nil {
			r.setError(CodeOOM, "Out of memory")
			return false
		}
		r.moveToNextTask()

	default:
		obj = r.builder.Array(cur, int(elements))
		if obj == nil {
			r.setError(CodeOOM, "Out of memory")
			return false
		}

		cur.Elements = int(elements)
		cur.Obj = obj
		r.ridx++
		r.rstack[r.ridx] = ReadTask{
			Type:     TypeUnknown,
			Elements: -1,
			Idx:      0,
			Parent:   cur,
		}
	}

	if root {
		r.reply = obj
	}
	return true
}

// processItem 推进当前帧的解析
func (r *Reader) processItem() bool {
	cur := &r.rstack[r.ridx]

	// 类型字节未定时先消费一个字节
	if cur.Type == TypeUnknown {
		p, ok := r.readBytes(1)
		if !ok {
			return false
		}

		switch p[0] {
		case '-':
			cur.Type = TypeError
		case '+':
			cur.Type = TypeStatus
		case ':':
			cur.Type = TypeInteger
		case '$':
			cur.Type = TypeString
		case '*':
			cur.Type = TypeArray
		default:
			r.setErrorProtocolByte(p[0])
			return false
		}
	}

	switch cur.Type {
	case TypeError, TypeStatus, TypeInteger:
		return r.processLineItem()
	case TypeString:
		return r.processBulkItem()
	case TypeArray:
		return r.processMultiBulkItem()
	}
	return false
}

// moveToNextTask 叶子完成后推进兄弟下标 已填满的父帧逐层弹出
func (r *Reader) moveToNextTask() {
	for r.ridx >= 0 {
		// Return a.s.a.p. when the stack is now empty.
		if r.ridx == 0 {
			r.ridx--
			return
		}

		cur := &r.rstack[r.ridx]
		prv := &r.rstack[r.ridx-1]
		if cur.Idx == prv.Elements-1 {
			r.ridx--
			continue
		}

		cur.Type = TypeUnknown
		cur.Elements = -1
		cur.Idx++
		return
	}
}

// GetReply 推进解析并在可能时产出一棵完整应答树
//
// 返回 (nil, nil) 表示数据不足 owner 继续喂数据后重试
// 出错后错误粘滞 直到 Reset
func (r *Reader) GetReply() (*Reply, error) {
	if r.errCode != CodeNone {
		return nil, NewError(r.errCode, "%s", r.errstr)
	}

	if r.buf.Len() == 0 {
		return nil, nil
	}

	if r.ridx == -1 {
		r.rstack[0] = ReadTask{
			Type:     TypeUnknown,
			Elements: -1,
			Idx:      0,
		}
		r.ridx = 0
	}

	for r.ridx >= 0 {
		if !r.processItem() {
			break
		}
	}

	if r.errCode != CodeNone {
		return nil, NewError(r.errCode, "%s", r.errstr)
	}

	// 延迟回收已消费的缓冲
	if r.pos >= compactThreshold {
		r.buf.Retrieve(r.pos)
		r.pos = 0
	}

	if r.ridx == -1 {
		reply := r.reply
		r.reply = nil
		return reply, nil
	}
	return nil, nil
}
