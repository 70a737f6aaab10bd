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

package cluster

import (
	"bytes"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/respkit/respkit/async"
	"github.com/respkit/respkit/common"
	"github.com/respkit/respkit/event"
	"github.com/respkit/respkit/internal/bytebuf"
	"github.com/respkit/respkit/logger"
	"github.com/respkit/respkit/resp"
)

// askingCommand ASK 重定向目标链接上重放命令前的握手字节
var askingCommand = []byte("*1\r\n$6\r\nASKING\r\n")

const (
	movedPrefix = "MOVED"
	askPrefix   = "ASK"
)

// Config 协调器配置
type Config struct {
	ClusterMode    bool          `mapstructure:"clusterMode"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// NewConfig 从 Options 解码配置
func NewConfig(opts common.Options) (Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &conf,
	})
	if err != nil {
		return conf, errors.Wrap(err, "cluster: decode config")
	}
	if err := decoder.Decode(map[string]any(opts)); err != nil {
		return conf, errors.Wrap(err, "cluster: decode config")
	}
	return conf, nil
}

// Hiredis 异步链接协调器
//
// 持有 链接标识 -> async.Context 的映射与一个持久化的轮询游标
// 集群模式下对 MOVED / ASK 错误应答作出反应 向重定向目标
// 建立新链接并重放原命令 重定向产生的 Client 由协调器保留
//
// 映射与游标由一把互斥锁守护 每个 async.Context 的在途队列
// 有自己的锁 回调执行期间两把锁都不持有 仅 Stats 在持有映射锁时
// 短暂获取各队列锁读取长度
type Hiredis struct {
	conf Config

	mtx      sync.Mutex
	contexts map[string]*async.Context
	ids      []string // 轮询顺序 与 contexts 同步维护
	cursor   int
	clients  []*event.Client

	stats *statsTable
}

// New 创建协调器
func New(conf Config) *Hiredis {
	return &Hiredis{
		conf:     conf,
		contexts: make(map[string]*async.Context),
		stats:    newStatsTable(),
	}
}

// NewFromOptions 从 Options 创建协调器
func NewFromOptions(opts common.Options) (*Hiredis, error) {
	conf, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// Connect 向 addr 建立一条托管链接
func (h *Hiredis) Connect(addr string) error {
	cli := event.NewClient(addr, h.conf.ConnectTimeout, nil)
	cli.SetConnectionCallback(h.onConnection)
	cli.SetMessageCallback(h.onMessage)
	if err := cli.SyncConnect(); err != nil {
		return err
	}

	h.pushClient(cli)
	return nil
}

// onConnection 普通链接的建立 / 断开回调
func (h *Hiredis) onConnection(conn *event.Conn) {
	if conn.Connected() {
		h.insert(conn.ID(), async.New(conn))
		logger.Infof("redis connect %s", conn.RemoteAddr())
		return
	}

	h.erase(conn.ID())
	logger.Infof("redis disconnect %s", conn.RemoteAddr())
}

// insert 登记链接上下文
func (h *Hiredis) insert(id string, ac *async.Context) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.contexts[id] = ac
	h.ids = append(h.ids, id)
	connectionsGauge.Inc()
}

// erase 注销链接上下文 在途回调以合成错误应答通知
func (h *Hiredis) erase(id string) {
	h.mtx.Lock()
	ac, ok := h.contexts[id]
	if !ok {
		h.mtx.Unlock()
		return
	}
	delete(h.contexts, id)

	for i, v := range h.ids {
		if v != id {
			continue
		}
		h.ids = append(h.ids[:i], h.ids[i+1:]...)
		// 游标指向被删元素之后的位置时前移 保持轮询连续
		if h.cursor > i {
			h.cursor--
		}
		break
	}
	connectionsGauge.Dec()
	h.mtx.Unlock()

	if n := ac.FailPending("connection lost"); n > 0 {
		droppedCallbacksTotal.Add(float64(n))
		logger.Warnf("connection %s lost with %d pending callbacks", id, n)
	}
}

// lookup 查找链接上下文
func (h *Hiredis) lookup(id string) *async.Context {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.contexts[id]
}

// pushClient 保留 Client 并顺带回收已断开的重定向链接
func (h *Hiredis) pushClient(cli *event.Client) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	alive := h.clients[:0]
	for _, c := range h.clients {
		if c.Alive() {
			alive = append(alive, c)
		}
	}
	h.clients = append(alive, cli)
}

// RoundRobin 轮询选出一个链接上下文 无可用链接返回 nil
func (h *Hiredis) RoundRobin() *async.Context {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if len(h.ids) == 0 {
		return nil
	}
	if h.cursor >= len(h.ids) {
		h.cursor = 0
	}

	ac := h.contexts[h.ids[h.cursor]]
	h.cursor++
	return ac
}

// Command 在轮询选出的链接上发起异步命令
func (h *Hiredis) Command(fn async.CallbackFn, privdata any, format string, args ...any) error {
	ac := h.RoundRobin()
	if ac == nil {
		return errors.New("cluster: no connection available")
	}
	if err := ac.Command(fn, privdata, format, args...); err != nil {
		return err
	}
	commandsTotal.Inc()
	return nil
}

// CommandArgv 参数向量版本的 Command
func (h *Hiredis) CommandArgv(fn async.CallbackFn, privdata any, args [][]byte) error {
	ac := h.RoundRobin()
	if ac == nil {
		return errors.New("cluster: no connection available")
	}
	if err := ac.CommandArgv(fn, privdata, args); err != nil {
		return err
	}
	commandsTotal.Inc()
	return nil
}

// onMessage 读回调 持续解析应答并派发
//
// 始终运行在该链接的读 goroutine 上
func (h *Hiredis) onMessage(conn *event.Conn, _ *bytebuf.Buffer) {
	ac := h.lookup(conn.ID())
	if ac == nil {
		return
	}

	for {
		reply, err := ac.GetReply()
		if err != nil {
			logger.Errorf("conn %s parse reply: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			return
		}
		if reply == nil {
			return
		}

		if h.conf.ClusterMode && reply.Type == resp.TypeError && isRedirect(reply.Str) {
			h.redirect(ac, reply)
			continue
		}

		repliesTotal.WithLabelValues(reply.Type.String()).Inc()
		h.stats.incReplies(conn.RemoteAddr())
		cb := ac.PopCallback()
		if cb != nil && cb.Fn != nil {
			cb.Fn(ac, reply, cb.Privdata)
		}
	}
}

func isRedirect(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte(movedPrefix)) || bytes.HasPrefix(payload, []byte(askPrefix))
}

// parseRedirect 解析 "MOVED <slot> <ip>:<port>" / "ASK <slot> <ip>:<port>"
//
// 按空格切词 地址按最后一个冒号切分 以兼容 IPv6 字面量
func parseRedirect(payload []byte) (kind string, slot int, addr string, ok bool) {
	fields := bytes.Fields(payload)
	if len(fields) != 3 {
		return "", 0, "", false
	}

	kind = string(fields[0])
	if kind != movedPrefix && kind != askPrefix {
		return "", 0, "", false
	}

	slot, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return "", 0, "", false
	}

	addr = string(fields[2])
	if idx := bytes.LastIndexByte(fields[2], ':'); idx <= 0 || idx == len(fields[2])-1 {
		return "", 0, "", false
	}
	return kind, slot, addr, true
}

// redirect 处理一次 MOVED / ASK 重定向
//
// 弹出队首回调（它持有原命令字节）在重定向目标上建链重放
// 每条 MOVED / ASK 应答只消费一个在途回调 后续链路上再次出现
// 重定向时按同样流程处理
func (h *Hiredis) redirect(ac *async.Context, reply *resp.Reply) {
	kind, slot, addr, ok := parseRedirect(reply.Str)
	if !ok {
		logger.Errorf("bad redirect payload %q", reply.Text())
		cb := ac.PopCallback()
		if cb != nil && cb.Fn != nil {
			cb.Fn(ac, reply, cb.Privdata)
		}
		return
	}

	logger.Warnf("-> Redirected to slot %d located at %s", slot, addr)

	cb := ac.PopCallback()
	if cb == nil {
		logger.Errorf("redirect %q without pending callback", reply.Text())
		return
	}

	cli := event.NewClient(addr, h.conf.ConnectTimeout, cb)
	cli.SetMessageCallback(h.onMessage)
	switch kind {
	case movedPrefix:
		cli.SetConnectionCallback(h.onMovedConnection)
	case askPrefix:
		cli.SetConnectionCallback(h.onAskConnection)
	}

	if err := cli.SyncConnect(); err != nil {
		logger.Errorf("redirect connect %s: %v", addr, err)
		droppedCallbacksTotal.Inc()
		if cb.Fn != nil {
			cb.Fn(ac, &resp.Reply{Type: resp.TypeError, Str: []byte("redirect connect failed")}, cb.Privdata)
		}
		return
	}

	h.pushClient(cli)
	redirectionsTotal.WithLabelValues(kind).Inc()
	h.stats.incRedirects(addr)
}

// stashedCallback 取出建链时挂载的原始请求
func stashedCallback(conn *event.Conn) *async.Callback {
	cb, ok := conn.Context().(*async.Callback)
	if !ok {
		return nil
	}
	conn.ResetContext()
	return cb
}

// onMovedConnection MOVED 目标链接的建立 / 断开回调
func (h *Hiredis) onMovedConnection(conn *event.Conn) {
	cb := stashedCallback(conn)
	if !conn.Connected() {
		h.erase(conn.ID())
		return
	}

	ac := async.New(conn)
	h.insert(conn.ID(), ac)
	if cb == nil {
		return
	}
	ac.PushCallback(cb)
	conn.SendPipe(cb.Data)
}

// onAskConnection ASK 目标链接的建立 / 断开回调
//
// 先发送 ASKING 握手 其应答由一个空回调吸收 保持 FIFO 对齐
func (h *Hiredis) onAskConnection(conn *event.Conn) {
	cb := stashedCallback(conn)
	if !conn.Connected() {
		h.erase(conn.ID())
		return
	}

	ac := async.New(conn)
	h.insert(conn.ID(), ac)
	if cb == nil {
		return
	}
	ac.PushCallback(&async.Callback{})
	conn.SendPipe(askingCommand)
	ac.PushCallback(cb)
	conn.SendPipe(cb.Data)
}

// Contexts 返回当前托管的链接数
func (h *Hiredis) Contexts() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.contexts)
}

// Close 关闭所有托管链接
func (h *Hiredis) Close() error {
	h.mtx.Lock()
	clients := h.clients
	h.clients = nil
	h.mtx.Unlock()

	var errs *multierror.Error
	for _, cli := range clients {
		if err := cli.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
