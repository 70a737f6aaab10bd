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
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/respkit/respkit/common"
	"github.com/respkit/respkit/internal/bytebuf"
	"github.com/respkit/respkit/internal/rescue"
	"github.com/respkit/respkit/logger"
)

// ConnectionCallback 链接建立 / 断开时回调 通过 Connected 区分
type ConnectionCallback func(conn *Conn)

// MessageCallback 输入缓冲有新数据时回调
//
// 回调始终在该链接的读 goroutine 上执行 同一条链接内是单线程的
// 实现方在回调中消费 buf 不允许跨 goroutine 保留其切片
type MessageCallback func(conn *Conn, buf *bytebuf.Buffer)

const sendPipeSize = 1024

// Conn 一条由事件回调驱动的 TCP 链接
//
// 读 goroutine 将 socket 数据喂入输入缓冲并触发 MessageCallback
// 写 goroutine 按 FIFO 排空 send pipe 两者在链接断开时退出
type Conn struct {
	id    string
	nc    net.Conn
	input *bytebuf.Buffer

	pipe chan []byte
	done chan struct{}

	closed    atomic.Bool
	connected atomic.Bool

	mtx sync.Mutex
	ctx any // 调用方挂载的上下文 与所有权无关

	onConnection ConnectionCallback
	onMessage    MessageCallback
}

func newConn(nc net.Conn) *Conn {
	c := &Conn{
		id:    uuid.New().String(),
		nc:    nc,
		input: bytebuf.New(),
		pipe:  make(chan []byte, sendPipeSize),
		done:  make(chan struct{}),
	}
	c.connected.Store(true)
	return c
}

// ID 链接唯一标识
func (c *Conn) ID() string {
	return c.id
}

// Connected 返回链接是否存活
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Input 返回输入缓冲 仅允许在 MessageCallback 中消费
func (c *Conn) Input() *bytebuf.Buffer {
	return c.input
}

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Context 返回挂载的上下文
func (c *Conn) Context() any {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.ctx
}

// SetContext 挂载上下文
func (c *Conn) SetContext(v any) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.ctx = v
}

// ResetContext 清除挂载的上下文
func (c *Conn) ResetContext() {
	c.SetContext(nil)
}

// SendPipe 将字节排入发送管道
//
// 发送顺序为入队顺序 链接已断开时静默丢弃
// b 的所有权移交给 Conn 调用方不允许再修改
func (c *Conn) SendPipe(b []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.pipe <- b:
	case <-c.done:
	}
}

// Close 主动关闭链接
func (c *Conn) Close() error {
	c.teardown()
	return nil
}

// teardown 只执行一次 断开后触发 ConnectionCallback
func (c *Conn) teardown() {
	if c.closed.Swap(true) {
		return
	}
	c.connected.Store(false)
	close(c.done)
	_ = c.nc.Close()

	if c.onConnection != nil {
		c.onConnection(c)
	}
}

func (c *Conn) readLoop() {
	defer rescue.HandleCrash("conn.read")
	defer c.teardown()

	for {
		n, err := c.input.ReadFrom(c.nc, common.ReadBlockSize)
		if err != nil {
			logger.Debugf("conn %s read finished: %v", c.id, err)
			return
		}
		if n > 0 && c.onMessage != nil {
			c.onMessage(c, c.input)
		}
	}
}

func (c *Conn) writeLoop() {
	defer rescue.HandleCrash("conn.write")

	for {
		select {
		case b := <-c.pipe:
			if _, err := c.nc.Write(b); err != nil {
				logger.Debugf("conn %s write finished: %v", c.id, err)
				c.teardown()
				return
			}

		case <-c.done:
			return
		}
	}
}
