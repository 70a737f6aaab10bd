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

	"github.com/valyala/bytebufferpool"
)

// FormatCommandArgv 以参数向量构建 RESP 命令
//
// 每个元素成为一个参数 输出与 FormatCommand 完全一致
//
//	*<argc>\r\n
//	$<len1>\r\n<arg1>\r\n
//	...
func FormatCommandArgv(args [][]byte) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	appendMultiBulk(buf, args)

	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// FormatCommandStrings 字符串参数的便捷入口
func FormatCommandStrings(args ...string) []byte {
	argv := make([][]byte, 0, len(args))
	for _, s := range args {
		argv = append(argv, []byte(s))
	}
	return FormatCommandArgv(argv)
}

func appendMultiBulk(buf *bytebufferpool.ByteBuffer, args [][]byte) {
	buf.B = append(buf.B, '*')
	buf.B = strconv.AppendInt(buf.B, int64(len(args)), 10)
	buf.B = append(buf.B, '\r', '\n')
	for _, arg := range args {
		buf.B = append(buf.B, '$')
		buf.B = strconv.AppendInt(buf.B, int64(len(arg)), 10)
		buf.B = append(buf.B, '\r', '\n')
		buf.B = append(buf.B, arg...)
		buf.B = append(buf.B, '\r', '\n')
	}
}

// FormatCommand 以 printf 风格的模板构建 RESP 命令
//
// 模板以空格切分参数 连续空格不会产生空参数 token 内识别的转义有
//
//   - %s 字符串参数 原样追加 接受 string / []byte
//   - %b 二进制参数 消费两个变参 (string|[]byte, 长度)
//   - %% 字面量 '%'
//   - 单个 printf 转换 flags `#0- +` 可选宽度/精度 长度修饰 hh|h|l|ll
//     verb 属于 diouxX 或 eEfFgGaA 该转换的渲染结果追加到当前 token
//
// 其余格式一律返回 ErrInvalidFormat
//
//	FormatCommand("SET %s %b", "k", "v\x00w", 3)
//	=> *3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\nv\x00w\r\n
func FormatCommand(format string, args ...any) ([]byte, error) {
	var argv [][]byte
	var touched bool
	ai := 0

	cur := bytebufferpool.Get()
	defer bytebufferpool.Put(cur)

	nextArg := func() (any, bool) {
		if ai >= len(args) {
			return nil, false
		}
		a := args[ai]
		ai++
		return a, true
	}

	flush := func() {
		arg := make([]byte, len(cur.B))
		copy(arg, cur.B)
		argv = append(argv, arg)
		cur.Reset()
		touched = false
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i == len(format)-1 {
			if c == ' ' {
				if touched {
					flush()
				}
				continue
			}
			cur.B = append(cur.B, c)
			touched = true
			continue
		}

		i++
		switch format[i] {
		case 's':
			a, ok := nextArg()
			if !ok {
				return nil, ErrInvalidFormat
			}
			b, ok := argBytes(a)
			if !ok {
				return nil, ErrInvalidFormat
			}
			cur.B = append(cur.B, b...)

		case 'b':
			a, ok := nextArg()
			if !ok {
				return nil, ErrInvalidFormat
			}
			l, ok := nextArg()
			if !ok {
				return nil, ErrInvalidFormat
			}
			b, ok := argBytes(a)
			if !ok {
				return nil, ErrInvalidFormat
			}
			size, ok := argInt(l)
			if !ok || size < 0 || size > int64(len(b)) {
				return nil, ErrInvalidFormat
			}
			cur.B = append(cur.B, b[:size]...)

		case '%':
			cur.B = append(cur.B, '%')

		default:
			// Try to detect printf format
			verb, end, ok := scanVerb(format, i)
			if !ok {
				return nil, ErrInvalidFormat
			}
			a, ok := nextArg()
			if !ok {
				return nil, ErrInvalidFormat
			}
			cur.B = fmt.Appendf(cur.B, verb, a)
			i = end
		}
		touched = true
	}

	// Add the last argument if needed
	if touched {
		flush()
	}

	out := bytebufferpool.Get()
	defer bytebufferpool.Put(out)
	appendMultiBulk(out, argv)

	cmd := make([]byte, len(out.B))
	copy(cmd, out.B)
	return cmd, nil
}

const (
	intVerbs    = "diouxX"
	doubleVerbs = "eEfFgGaA"
)

// scanVerb 校验单个 printf 转换并改写为 Go fmt 兼容的格式片段
//
// format[i] 指向 '%' 之后的首个字符 返回片段与转换末字符下标
// C 与 Go 的差异在这里抹平 长度修饰去除 i/u 改写为 d F/a/A 改写为 f/x/X
func scanVerb(format string, i int) (string, int, bool) {
	j := i

	// Flags
	for j < len(format) {
		switch format[j] {
		case '#', '0', '-', ' ', '+':
			j++
			continue
		}
		break
	}

	// Field width
	for j < len(format) && format[j] >= '0' && format[j] <= '9' {
		j++
	}

	// Precision
	if j < len(format) && format[j] == '.' {
		j++
		for j < len(format) && format[j] >= '0' && format[j] <= '9' {
			j++
		}
	}

	spec := format[i:j]

	// Size: hh|h|l|ll 只影响 C 侧变参提升 Go 侧直接丢弃
	if j < len(format) && format[j] == 'h' {
		j++
		if j < len(format) && format[j] == 'h' {
			j++
		}
		if j >= len(format) || !contains(intVerbs, format[j]) {
			return "", 0, false
		}
	} else if j < len(format) && format[j] == 'l' {
		j++
		if j < len(format) && format[j] == 'l' {
			j++
		}
		if j >= len(format) || !contains(intVerbs, format[j]) {
			return "", 0, false
		}
	}

	if j >= len(format) {
		return "", 0, false
	}

	verb := format[j]
	switch {
	case contains(intVerbs, verb):
		switch verb {
		case 'i', 'u':
			verb = 'd'
		}
	case contains(doubleVerbs, verb):
		switch verb {
		case 'F':
			verb = 'f'
		case 'a':
			verb = 'x'
		case 'A':
			verb = 'X'
		}
	default:
		return "", 0, false
	}

	return "%" + spec + string(verb), j, true
}

func contains(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}

func argBytes(a any) ([]byte, bool) {
	switch v := a.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	}
	return nil, false
}

func argInt(a any) (int64, bool) {
	switch v := a.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}
