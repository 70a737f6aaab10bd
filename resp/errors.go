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

	"github.com/pkg/errors"
)

// Code 错误类型分类
type Code int

const (
	CodeNone Code = iota

	// CodeIO socket / 系统调用失败 或对端未就绪
	CodeIO

	// CodeOther 非法格式串等其他错误
	CodeOther

	// CodeEOF 对端正常关闭
	CodeEOF

	// CodeProtocol 非法类型字节 / 嵌套过深 / 行格式错误
	CodeProtocol

	// CodeOOM 对象构建失败
	CodeOOM
)

func (c Code) String() string {
	switch c {
	case CodeIO:
		return "IO"
	case CodeOther:
		return "Other"
	case CodeEOF:
		return "EOF"
	case CodeProtocol:
		return "Protocol"
	case CodeOOM:
		return "OOM"
	}
	return "None"
}

// Error 携带分类码的错误
//
// Reader / Context 的 err+errstr 表面均由此承载
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError 创建分类错误
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf 提取 err 的分类码 非 *Error 返回 CodeNone
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}

var (
	// ErrInvalidFormat 非法格式串
	ErrInvalidFormat = &Error{Code: CodeOther, Msg: "Invalid format string"}

	// ErrOOM 对象构建失败
	ErrOOM = &Error{Code: CodeOOM, Msg: "Out of memory"}
)
