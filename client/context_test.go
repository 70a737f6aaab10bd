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
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/respkit/respkit/resp"
)

// fakeServer 在回环地址上起一个单链接的假 Redis
//
// handle 在独立 goroutine 中处理首个链接
func fakeServer(t *testing.T, handle func(conn net.Conn)) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, _ := strconv.Atoi(port)
	return host, p
}

func readRequest(conn net.Conn) []byte {
	b := make([]byte, 4096)
	n, err := conn.Read(b)
	if err != nil {
		return nil
	}
	return b[:n]
}

func TestContextCommand(t *testing.T) {
	requests := make(chan []byte, 1)
	host, port := fakeServer(t, func(conn net.Conn) {
		requests <- readRequest(conn)
		_, _ = conn.Write([]byte("+PONG\r\n"))
	})

	c := ConnectWithTimeout(host, port, time.Second)
	require.Equal(t, resp.CodeNone, c.Err())
	defer c.Close()

	reply, err := c.Command("PING")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, resp.TypeStatus, reply.Type)
	assert.Equal(t, "PONG", reply.Text())

	select {
	case req := <-requests:
		assert.Equal(t, "*1\r\n$4\r\nPING\r\n", string(req))
	case <-time.After(time.Second):
		t.Fatal("server saw no request")
	}
}

func TestContextPipeline(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		readRequest(conn)
		_, _ = conn.Write([]byte(":1\r\n$3\r\nfoo\r\n"))
	})

	c := ConnectWithTimeout(host, port, time.Second)
	require.Equal(t, resp.CodeNone, c.Err())
	defer c.Close()

	require.NoError(t, c.AppendCommand("INCR %s", "counter"))
	c.AppendCommandArgv([][]byte{[]byte("GET"), []byte("k")})

	first, err := c.GetReply()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.Integer)

	second, err := c.GetReply()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "foo", second.Text())
}

func TestContextCommandArgv(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		readRequest(conn)
		_, _ = conn.Write([]byte("$-1\r\n"))
	})

	c := ConnectWithTimeout(host, port, time.Second)
	defer c.Close()

	reply, err := c.CommandArgv([][]byte{[]byte("GET"), []byte("missing")})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.True(t, reply.IsNil())
}

func TestContextServerClose(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		readRequest(conn)
		// 不应答直接关闭
	})

	c := ConnectWithTimeout(host, port, time.Second)
	defer c.Close()

	reply, err := c.Command("GET k")
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, resp.CodeEOF, c.Err())
	assert.Equal(t, "Server closed the connection", c.ErrString())

	// 错误粘滞 后续 I/O 一律短路
	_, err = c.Command("PING")
	require.Error(t, err)
	assert.Equal(t, resp.CodeEOF, resp.CodeOf(err))
}

func TestContextConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(l.Addr().String())
	p, _ := strconv.Atoi(port)
	require.NoError(t, l.Close())

	c := ConnectWithTimeout("127.0.0.1", p, time.Second)
	assert.Equal(t, resp.CodeIO, c.Err())
	assert.False(t, c.Connected())
}

func TestContextInvalidFormat(t *testing.T) {
	c := New()
	c.SetBlocking()

	err := c.AppendCommand("GET %z", 1)
	require.Error(t, err)
	assert.Equal(t, resp.CodeOther, c.Err())
	assert.Equal(t, "Invalid format string", c.ErrString())
}

func TestContextProtocolError(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		readRequest(conn)
		_, _ = conn.Write([]byte("@bad\r\n"))
	})

	c := ConnectWithTimeout(host, port, time.Second)
	defer c.Close()

	reply, err := c.Command("PING")
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, resp.CodeProtocol, c.Err())
}
