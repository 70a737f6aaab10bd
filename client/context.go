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

package client

import (
	"io"
	"net"
	"strconv"
	"time"

	"github.com/respkit/respkit/common"
	"github.com/respkit/respkit/internal/bytebuf"
	"github.com/respkit/respkit/resp"
)

type flag uint8

const (
	flagBlock flag = 1 << iota
	flagConnected
)

// Context 同步阻塞客户端
//
// 持有一条 socket 链接 一个发送缓冲和一个 Reader
// 阻塞模式下 Command 为请求-应答往返 非阻塞模式仅作为
// async.Context 的解析与发送缓冲载体 不可跨 goroutine 共享
type Context struct {
	conn  net.Conn
	flags flag

	errCode resp.Code
	errstr  string

	sender *bytebuf.Buffer
	reader *resp.Reader

	addr string // 远端地址 仅诊断用
}

// New 创建未连接的 Context
func New() *Context {
	return &Context{
		sender: bytebuf.New(),
		reader: resp.NewReader(bytebuf.New()),
	}
}

// NewWithBuffer 基于外部输入缓冲创建 Context
//
// async 场景下输入缓冲由 event.Conn 持有 Context 只负责解析与攒发送数据
func NewWithBuffer(buf *bytebuf.Buffer) *Context {
	c := &Context{
		sender: bytebuf.New(),
		reader: resp.NewReader(buf),
	}
	c.setConnected()
	return c
}

// Connect 建立 TCP 链接并返回阻塞模式的 Context
//
// 失败时错误同时记录在 Context 上 调用方检查 Err
func Connect(ip string, port int) *Context {
	c := New()
	c.SetBlocking()
	_ = c.ConnectTCP(ip, port, 0)
	return c
}

// ConnectWithTimeout 带连接超时的 Connect
func ConnectWithTimeout(ip string, port int, timeout time.Duration) *Context {
	c := New()
	c.SetBlocking()
	_ = c.ConnectTCP(ip, port, timeout)
	return c
}

// ConnectUnix 建立 UNIX 域链接并返回阻塞模式的 Context
func ConnectUnix(path string, timeout time.Duration) *Context {
	c := New()
	c.SetBlocking()
	_ = c.connect("unix", path, timeout)
	return c
}

// SetBlocking 切换为阻塞模式
func (c *Context) SetBlocking() {
	c.flags |= flagBlock
}

func (c *Context) setConnected() {
	c.flags |= flagConnected
}

func (c *Context) setDisconnected() {
	c.flags &^= flagConnected
}

// Connected 返回链接是否可用
func (c *Context) Connected() bool {
	return c.flags&flagConnected != 0
}

func (c *Context) blocking() bool {
	return c.flags&flagBlock != 0
}

// Err 返回粘滞错误分类码 非零后所有 I/O 操作短路
func (c *Context) Err() resp.Code {
	return c.errCode
}

// ErrString 返回错误描述
func (c *Context) ErrString() string {
	return c.errstr
}

func (c *Context) setError(code resp.Code, msg string) {
	c.errCode = code
	if len(msg) > 128 {
		msg = msg[:128]
	}
	c.errstr = msg
}

func (c *Context) stickyError() error {
	return resp.NewError(c.errCode, "%s", c.errstr)
}

// Reset 清除错误状态 复用前必须调用
func (c *Context) Reset() {
	c.errCode = resp.CodeNone
	c.errstr = ""
	c.reader.Reset()
	c.sender.RetrieveAll()
}

// Reader 返回内部解析器 async 层直接驱动它
func (c *Context) Reader() *resp.Reader {
	return c.reader
}

// Sender 返回发送缓冲
func (c *Context) Sender() *bytebuf.Buffer {
	return c.sender
}

// RemoteAddr 返回连接时记录的远端地址
func (c *Context) RemoteAddr() string {
	return c.addr
}

// ConnectTCP 建立 TCP 链接 连接完成后开启 TCP_NODELAY
//
// timeout 为 0 表示无限等待
func (c *Context) ConnectTCP(ip string, port int, timeout time.Duration) error {
	return c.connect("tcp", net.JoinHostPort(ip, strconv.Itoa(port)), timeout)
}

func (c *Context) connect(network, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial(network, addr)
	if err != nil {
		c.setError(resp.CodeIO, err.Error())
		return c.stickyError()
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			_ = conn.Close()
			c.setError(resp.CodeIO, err.Error())
			return c.stickyError()
		}
	}

	c.conn = conn
	c.addr = addr
	c.setConnected()
	return nil
}

// AppendCommand 格式化命令并追加到发送缓冲
func (c *Context) AppendCommand(format string, args ...any) error {
	cmd, err := resp.FormatCommand(format, args...)
	if err != nil {
		c.setError(resp.CodeOther, "Invalid format string")
		return c.stickyError()
	}
	c.sender.Append(cmd)
	return nil
}

// AppendCommandArgv 以参数向量追加命令
func (c *Context) AppendCommandArgv(args [][]byte) {
	c.sender.Append(resp.FormatCommandArgv(args))
}

// AppendFormattedCommand 追加已格式化好的命令字节
func (c *Context) AppendFormattedCommand(cmd []byte) {
	c.sender.Append(cmd)
}

// retriable 非阻塞模式下的超时等价于 EAGAIN 下一轮再试
func (c *Context) retriable(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout() && !c.blocking()
}

// BufferWrite 将发送缓冲写入 socket
//
// 返回的 done 表示发送缓冲是否已排空 写出部分字节也算成功
func (c *Context) BufferWrite() (bool, error) {
	if c.errCode != resp.CodeNone {
		return false, c.stickyError()
	}

	if c.sender.Len() > 0 {
		if !c.blocking() {
			_ = c.conn.SetWriteDeadline(time.Now())
		}

		n, err := c.conn.Write(c.sender.Peek())
		if n > 0 {
			c.sender.Retrieve(n)
		}
		if err != nil && !c.retriable(err) {
			c.setError(resp.CodeIO, err.Error())
			return false, c.stickyError()
		}
	}
	return c.sender.Len() == 0, nil
}

// BufferRead 从 socket 读取数据喂给解析器
//
// 对端关闭返回 EOF 错误 非阻塞模式下无数据可读不算错误
func (c *Context) BufferRead() error {
	if c.errCode != resp.CodeNone {
		return c.stickyError()
	}

	if !c.blocking() {
		_ = c.conn.SetReadDeadline(time.Now())
	}

	n, err := c.reader.Buffer().ReadFrom(c.conn, common.ReadBlockSize)
	if err != nil {
		if err == io.EOF && n == 0 {
			c.setError(resp.CodeEOF, "Server closed the connection")
			return c.stickyError()
		}
		if !c.retriable(err) {
			c.setError(resp.CodeIO, err.Error())
			return c.stickyError()
		}
	}
	return nil
}

// GetReplyFromReader 尝试从解析器拿一条应答 错误转移到 Context 上
func (c *Context) GetReplyFromReader() (*resp.Reply, error) {
	reply, err := c.reader.GetReply()
	if err != nil {
		c.setError(c.reader.Err(), c.reader.ErrString())
		return nil, c.stickyError()
	}
	return reply, nil
}

// GetReply 获取一条应答
//
// 先尝试排空已缓冲的应答 阻塞模式下排空发送缓冲后持续读取直到产出
func (c *Context) GetReply() (*resp.Reply, error) {
	reply, err := c.GetReplyFromReader()
	if err != nil {
		return nil, err
	}

	if reply == nil && c.blocking() {
		// Write until done
		for {
			done, err := c.BufferWrite()
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}

		// Read until there is a reply
		for reply == nil {
			if err := c.BufferRead(); err != nil {
				return nil, err
			}
			if reply, err = c.GetReplyFromReader(); err != nil {
				return nil, err
			}
		}
	}
	return reply, nil
}

// Command 追加命令并阻塞等待应答 仅阻塞模式可用
func (c *Context) Command(format string, args ...any) (*resp.Reply, error) {
	if err := c.AppendCommand(format, args...); err != nil {
		return nil, err
	}
	return c.blockForReply()
}

// CommandArgv 参数向量版本的 Command
func (c *Context) CommandArgv(args [][]byte) (*resp.Reply, error) {
	c.AppendCommandArgv(args)
	return c.blockForReply()
}

func (c *Context) blockForReply() (*resp.Reply, error) {
	if !c.blocking() {
		return nil, resp.NewError(resp.CodeOther, "Context is not in blocking mode")
	}
	return c.GetReply()
}

// Close 关闭链接 Context 进入不可用状态
func (c *Context) Close() error {
	c.setDisconnected()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
