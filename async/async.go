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

package async

import (
	"container/list"
	"sync"

	"github.com/respkit/respkit/client"
	"github.com/respkit/respkit/event"
	"github.com/respkit/respkit/resp"
)

// CallbackFn 应答回调
//
// RESP 在单条链接上严格按请求顺序应答 回调按入队顺序触发
type CallbackFn func(ac *Context, reply *resp.Reply, privdata any)

// Callback 一条在途请求
//
// Data 为编码后的命令字节 链接取走前由 Callback 持有
// 集群重定向时 Data 被原样在新链接上重放
type Callback struct {
	Data     []byte
	Fn       CallbackFn
	Privdata any
}

// Context 异步流水线客户端
//
// 包装一条 event.Conn 与一个解析用的 client.Context
// 命令入队与应答出队分别发生在调用方线程与链接的读 goroutine
// pending 队列由自身的互斥锁守护
type Context struct {
	conn *event.Conn
	rc   *client.Context

	mtx     sync.Mutex
	pending *list.List
}

// New 基于已建立的链接创建 Context
func New(conn *event.Conn) *Context {
	return &Context{
		conn:    conn,
		rc:      client.NewWithBuffer(conn.Input()),
		pending: list.New(),
	}
}

// Conn 返回底层链接
func (ac *Context) Conn() *event.Conn {
	return ac.conn
}

// Inner 返回解析与发送缓冲载体
func (ac *Context) Inner() *client.Context {
	return ac.rc
}

// Command 格式化命令 入队回调 再把命令字节交给链接发送
func (ac *Context) Command(fn CallbackFn, privdata any, format string, args ...any) error {
	cmd, err := resp.FormatCommand(format, args...)
	if err != nil {
		return err
	}
	ac.submit(&Callback{Data: cmd, Fn: fn, Privdata: privdata})
	return nil
}

// CommandArgv 参数向量版本的 Command
func (ac *Context) CommandArgv(fn CallbackFn, privdata any, args [][]byte) error {
	ac.submit(&Callback{Data: resp.FormatCommandArgv(args), Fn: fn, Privdata: privdata})
	return nil
}

func (ac *Context) submit(cb *Callback) {
	ac.PushCallback(cb)
	ac.conn.SendPipe(cb.Data)
}

// GetReply 从链接输入缓冲中解析一条应答 数据不足时返回 (nil, nil)
func (ac *Context) GetReply() (*resp.Reply, error) {
	return ac.rc.GetReply()
}

// PushCallback 回调入队
func (ac *Context) PushCallback(cb *Callback) {
	ac.mtx.Lock()
	defer ac.mtx.Unlock()
	ac.pending.PushBack(cb)
}

// PopCallback 弹出队首回调 队列为空返回 nil
func (ac *Context) PopCallback() *Callback {
	ac.mtx.Lock()
	defer ac.mtx.Unlock()

	front := ac.pending.Front()
	if front == nil {
		return nil
	}
	ac.pending.Remove(front)
	return front.Value.(*Callback)
}

// PendingLen 返回在途请求数
func (ac *Context) PendingLen() int {
	ac.mtx.Lock()
	defer ac.mtx.Unlock()
	return ac.pending.Len()
}

// FailPending 链接断开时以合成错误应答逐个通知在途回调
//
// 返回被通知的回调个数
func (ac *Context) FailPending(msg string) int {
	var n int
	for {
		cb := ac.PopCallback()
		if cb == nil {
			return n
		}
		n++
		if cb.Fn != nil {
			cb.Fn(ac, &resp.Reply{Type: resp.TypeError, Str: []byte(msg)}, cb.Privdata)
		}
	}
}
