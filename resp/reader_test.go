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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/respkit/respkit/internal/bytebuf"
)

func TestReaderSimpleReplies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Reply
	}{
		{
			name:  "Status OK",
			input: "+OK\r\n",
			want:  &Reply{Type: TypeStatus, Str: []byte("OK")},
		},
		{
			name:  "Status PONG",
			input: "+PONG\r\n",
			want:  &Reply{Type: TypeStatus, Str: []byte("PONG")},
		},
		{
			name:  "Error message",
			input: "-ERR unknown command\r\n",
			want:  &Reply{Type: TypeError, Str: []byte("ERR unknown command")},
		},
		{
			name:  "Integer positive",
			input: ":1000\r\n",
			want:  &Reply{Type: TypeInteger, Integer: 1000},
		},
		{
			name:  "Integer negative",
			input: ":-42\r\n",
			want:  &Reply{Type: TypeInteger, Integer: -42},
		},
		{
			name:  "Integer with plus sign",
			input: ":+7\r\n",
			want:  &Reply{Type: TypeInteger, Integer: 7},
		},
		{
			name:  "BulkString foobar",
			input: "$6\r\nfoobar\r\n",
			want:  &Reply{Type: TypeString, Str: []byte("foobar")},
		},
		{
			name:  "BulkString with embedded NUL",
			input: "$3\r\nv\x00w\r\n",
			want:  &Reply{Type: TypeString, Str: []byte("v\x00w")},
		},
		{
			name:  "BulkString empty",
			input: "$0\r\n\r\n",
			want:  &Reply{Type: TypeString, Str: []byte{}},
		},
		{
			name:  "BulkString nil",
			input: "$-1\r\n",
			want:  &Reply{Type: TypeNil},
		},
		{
			name:  "Array nil",
			input: "*-1\r\n",
			want:  &Reply{Type: TypeNil},
		},
		{
			name:  "Array empty",
			input: "*0\r\n",
			want:  &Reply{Type: TypeArray},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytebuf.NewWith([]byte(tt.input)))
			reply, err := r.GetReply()
			require.NoError(t, err)
			require.NotNil(t, reply)
			assert.Equal(t, tt.want.Type, reply.Type)
			assert.Equal(t, tt.want.Str, reply.Str)
			assert.Equal(t, tt.want.Integer, reply.Integer)
		})
	}
}

func TestReaderMixedArray(t *testing.T) {
	r := NewReader(bytebuf.NewWith([]byte("*3\r\n$3\r\nfoo\r\n$-1\r\n:42\r\n")))
	reply, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, TypeArray, reply.Type)
	require.Len(t, reply.Elements, 3)
	assert.Equal(t, TypeString, reply.Elements[0].Type)
	assert.Equal(t, "foo", reply.Elements[0].Text())
	assert.Equal(t, TypeNil, reply.Elements[1].Type)
	assert.Equal(t, TypeInteger, reply.Elements[2].Type)
	assert.Equal(t, int64(42), reply.Elements[2].Integer)
}

func TestReaderNestedArray(t *testing.T) {
	r := NewReader(bytebuf.NewWith([]byte("*2\r\n*2\r\n:1\r\n:2\r\n*1\r\n$3\r\nfoo\r\n")))
	reply, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)

	require.Len(t, reply.Elements, 2)
	require.Len(t, reply.Elements[0].Elements, 2)
	assert.Equal(t, int64(1), reply.Elements[0].Elements[0].Integer)
	assert.Equal(t, int64(2), reply.Elements[0].Elements[1].Integer)
	require.Len(t, reply.Elements[1].Elements, 1)
	assert.Equal(t, "foo", reply.Elements[1].Elements[0].Text())
}

// TestReaderIncremental 校验逐字节喂入与一次性喂入产出相同的应答树
//
// 任何前缀都不应该产出应答 完整输入恰好产出一条
func TestReaderIncremental(t *testing.T) {
	inputs := []string{
		"+OK\r\n",
		":1000\r\n",
		"$6\r\nfoobar\r\n",
		"*3\r\n$3\r\nfoo\r\n$-1\r\n:42\r\n",
		"*2\r\n*2\r\n:1\r\n:2\r\n$3\r\nbar\r\n",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			whole := NewReader(bytebuf.NewWith([]byte(input)))
			want, err := whole.GetReply()
			require.NoError(t, err)
			require.NotNil(t, want)

			buf := bytebuf.New()
			r := NewReader(buf)
			var got *Reply
			for i := 0; i < len(input); i++ {
				buf.Append([]byte{input[i]})
				reply, err := r.GetReply()
				require.NoError(t, err)
				if i < len(input)-1 {
					require.Nil(t, reply, "prefix must not emit a reply")
					continue
				}
				got = reply
			}
			require.NotNil(t, got)
			assert.Equal(t, want, got)
		})
	}
}

func TestReaderSplitBulkString(t *testing.T) {
	buf := bytebuf.New()
	r := NewReader(buf)

	buf.WriteString("$5\r\nhel")
	reply, err := r.GetReply()
	require.NoError(t, err)
	assert.Nil(t, reply)

	buf.WriteString("lo\r\n")
	reply, err = r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "hello", reply.Text())
}

func TestReaderBackToBack(t *testing.T) {
	s := "*2\r\n$3\r\nfoo\r\n:7\r\n"
	r := NewReader(bytebuf.NewWith([]byte(s + s)))

	first, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first, second)

	third, err := r.GetReply()
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestReaderDepthLimit(t *testing.T) {
	// 根节点加 7 层嵌套是允许的上限
	ok := strings.Repeat("*1\r\n", 8) + ":1\r\n"
	r := NewReader(bytebuf.NewWith([]byte(ok)))
	reply, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)

	bad := strings.Repeat("*1\r\n", 9) + ":1\r\n"
	buf := bytebuf.NewWith([]byte(bad))
	r = NewReader(buf)
	reply, err = r.GetReply()
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, CodeProtocol, r.Err())
	assert.Equal(t, "No support for nested multi bulk replies with depth > 7", r.ErrString())
	assert.Equal(t, 0, buf.Len())
}

func TestReaderProtocolErrorByte(t *testing.T) {
	buf := bytebuf.NewWith([]byte("@foo\r\n"))
	r := NewReader(buf)

	reply, err := r.GetReply()
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, CodeProtocol, r.Err())
	assert.Equal(t, `Protocol error, got "@" as reply type byte`, r.ErrString())
	assert.Equal(t, 0, buf.Len())

	// 错误是粘滞的 喂入合法数据也不恢复
	buf.WriteString("+OK\r\n")
	_, err = r.GetReply()
	require.Error(t, err)

	r.Reset()
	reply, err = r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "OK", reply.Text())
}

func TestReaderBadInteger(t *testing.T) {
	tests := []string{
		":12a\r\n",
		":\r\n",
		":+\r\n",
		"$x\r\n",
		"*1x\r\n",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			buf := bytebuf.NewWith([]byte(input))
			r := NewReader(buf)
			_, err := r.GetReply()
			require.Error(t, err)
			assert.Equal(t, CodeProtocol, r.Err())
			assert.Equal(t, 0, buf.Len())
		})
	}
}

func TestReaderLargePayloadCompaction(t *testing.T) {
	// 超过 compactThreshold 后缓冲被回收 后续解析不受影响
	payload := strings.Repeat("x", 4096)
	input := "$4096\r\n" + payload + "\r\n+OK\r\n"

	buf := bytebuf.NewWith([]byte(input))
	r := NewReader(buf)

	reply, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, payload, reply.Text())

	reply, err = r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "OK", reply.Text())
}
