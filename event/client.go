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

package event

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client 负责拨号并托管一条 Conn
//
// 回调需在 SyncConnect 之前注册 连接成功后立刻回调 ConnectionCallback
// 之后读写 goroutine 才开始工作 保证回调先于任何消息派发
type Client struct {
	addr    string
	timeout time.Duration

	ctx          any
	onConnection ConnectionCallback
	onMessage    MessageCallback

	conn *Conn
}

// NewClient 创建客户端 ctx 会挂载到建立的 Conn 上
func NewClient(addr string, timeout time.Duration, ctx any) *Client {
	return &Client{
		addr:    addr,
		timeout: timeout,
		ctx:     ctx,
	}
}

// SetConnectionCallback 注册链接建立/断开回调
func (c *Client) SetConnectionCallback(fn ConnectionCallback) {
	c.onConnection = fn
}

// SetMessageCallback 注册消息回调
func (c *Client) SetMessageCallback(fn MessageCallback) {
	c.onMessage = fn
}

// SyncConnect 同步拨号
//
// 成功后 Conn 进入事件派发状态 失败则直接返回错误
// 拨号失败没有 Conn 可以回调 由调用方自行兜底
func (c *Client) SyncConnect() error {
	d := net.Dialer{Timeout: c.timeout}
	nc, err := d.Dial("tcp", c.addr)
	if err != nil {
		return errors.Wrapf(err, "connect %s", c.addr)
	}

	if tc, ok := nc.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			_ = nc.Close()
			return errors.Wrapf(err, "connect %s", c.addr)
		}
	}

	conn := newConn(nc)
	conn.SetContext(c.ctx)
	conn.onConnection = c.onConnection
	conn.onMessage = c.onMessage
	c.conn = conn

	if conn.onConnection != nil {
		conn.onConnection(conn)
	}

	go conn.writeLoop()
	go conn.readLoop()
	return nil
}

// Conn 返回托管的链接 未连接时为 nil
func (c *Client) Conn() *Conn {
	return c.conn
}

// Alive 返回托管链接是否存活
func (c *Client) Alive() bool {
	return c.conn != nil && c.conn.Connected()
}

// Close 关闭托管的链接
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
