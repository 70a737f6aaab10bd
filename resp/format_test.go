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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/respkit/respkit/internal/bytebuf"
)

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name   string
		format string
		args   []any
		want   string
	}{
		{
			name:   "plain words",
			format: "SET key value",
			want:   "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n",
		},
		{
			name:   "string escape",
			format: "GET %s",
			args:   []any{"mykey"},
			want:   "*2\r\n$3\r\nGET\r\n$5\r\nmykey\r\n",
		},
		{
			name:   "binary escape with embedded NUL",
			format: "SET %s %b",
			args:   []any{"k", "v\x00w", 3},
			want:   "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\nv\x00w\r\n",
		},
		{
			name:   "binary escape shorter than payload",
			format: "SET %s %b",
			args:   []any{"k", "value", 3},
			want:   "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\nval\r\n",
		},
		{
			name:   "percent literal",
			format: "SET %% %s",
			args:   []any{"v"},
			want:   "*3\r\n$3\r\nSET\r\n$1\r\n%\r\n$1\r\nv\r\n",
		},
		{
			name:   "integer conversion",
			format: "EXPIRE key %d",
			args:   []any{300},
			want:   "*3\r\n$6\r\nEXPIRE\r\n$3\r\nkey\r\n$3\r\n300\r\n",
		},
		{
			name:   "integer conversion with width",
			format: "SET key %05d",
			args:   []any{42},
			want:   "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\n00042\r\n",
		},
		{
			name:   "long long modifier",
			format: "SET key %lld",
			args:   []any{int64(1234567890123)},
			want:   "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$13\r\n1234567890123\r\n",
		},
		{
			name:   "float precision",
			format: "INCRBYFLOAT key %.2f",
			args:   []any{3.14159},
			want:   "*3\r\n$11\r\nINCRBYFLOAT\r\n$3\r\nkey\r\n$4\r\n3.14\r\n",
		},
		{
			name:   "conversion glued to token",
			format: "SET key%d suffix",
			args:   []any{7},
			want:   "*3\r\n$3\r\nSET\r\n$4\r\nkey7\r\n$6\r\nsuffix\r\n",
		},
		{
			name:   "runs of spaces emit no empty argument",
			format: "SET   key    value",
			want:   "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n",
		},
		{
			name:   "empty string argument still counts",
			format: "SET key %s",
			args:   []any{""},
			want:   "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatCommand(tt.format, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFormatCommandInvalid(t *testing.T) {
	tests := []struct {
		name   string
		format string
		args   []any
	}{
		{
			name:   "unknown verb",
			format: "SET key %z",
			args:   []any{1},
		},
		{
			name:   "missing argument",
			format: "GET %s",
		},
		{
			name:   "missing binary length",
			format: "SET key %b",
			args:   []any{"v"},
		},
		{
			name:   "binary length beyond payload",
			format: "SET key %b",
			args:   []any{"v", 10},
		},
		{
			name:   "bad length modifier",
			format: "SET key %hf",
			args:   []any{1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FormatCommand(tt.format, tt.args...)
			require.Error(t, err)
			assert.Equal(t, CodeOther, CodeOf(err))
		})
	}
}

// TestFormatEquivalence 两个入口对相同参数产出完全一致的字节
func TestFormatEquivalence(t *testing.T) {
	argv := [][]byte{[]byte("SET"), []byte("k"), []byte("v\x00w")}

	byArgv := FormatCommandArgv(argv)
	byFormat, err := FormatCommand("%b %b %b",
		argv[0], len(argv[0]), argv[1], len(argv[1]), argv[2], len(argv[2]))
	require.NoError(t, err)
	assert.Equal(t, byArgv, byFormat)

	byStrings := FormatCommandStrings("SET", "k", "v\x00w")
	assert.Equal(t, byArgv, byStrings)
}

// TestFormatRoundTrip 格式化产物经 Reader 解析还原出原始参数
func TestFormatRoundTrip(t *testing.T) {
	argv := [][]byte{[]byte("MSET"), []byte("k1"), []byte("v\x00w"), []byte("")}
	cmd := FormatCommandArgv(argv)

	r := NewReader(bytebuf.NewWith(cmd))
	reply, err := r.GetReply()
	require.NoError(t, err)
	require.NotNil(t, reply)

	require.Equal(t, TypeArray, reply.Type)
	require.Len(t, reply.Elements, len(argv))
	for i, arg := range argv {
		assert.Equal(t, TypeString, reply.Elements[i].Type)
		assert.Equal(t, string(arg), reply.Elements[i].Text())
	}
}
