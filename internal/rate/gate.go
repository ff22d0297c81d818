package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"jdextract/pkg/contract"
)

// LimitKey: 限流分组键（client + api key 指纹）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限（含输入+预期输出），0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 默认为 1；必须 >=1
	Tokens   int // 预计 token （>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
}

// Snapshoter: 可选诊断接口（限流等待后记录剩余额度）。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate: 从静态配置构造闸门；clk 仅用于 Snapshot，为空则使用 time.Now。
// 每个维度是一个 x/time/rate 令牌桶：容量=每分钟额度，补充速率=额度/60 每秒。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req *xrate.Limiter // nil 表示该维度关闭
	tok *xrate.Limiter
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		e.req = xrate.NewLimiter(xrate.Limit(float64(lim.RPM)/60.0), lim.RPM)
	}
	if lim.TPM > 0 {
		e.tok = xrate.NewLimiter(xrate.Limit(float64(lim.TPM)/60.0), lim.TPM)
	}
	return e
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return fmt.Errorf("rate: %w: requests=%d tokens=%d", contract.ErrInvalidInput, a.Requests, a.Tokens)
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return fmt.Errorf("rate: %w: tokens %d > max_tokens_per_req %d", contract.ErrBudgetExceeded, a.Tokens, e.lim.MaxTokensPerReq)
	}
	if e.req != nil && a.Requests > e.req.Burst() {
		return fmt.Errorf("rate: %w: requests %d > rpm %d", contract.ErrInvalidInput, a.Requests, e.req.Burst())
	}
	if e.tok != nil && a.Tokens > e.tok.Burst() {
		return fmt.Errorf("rate: %w: tokens %d > tpm %d", contract.ErrBudgetExceeded, a.Tokens, e.tok.Burst())
	}
	return nil
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if e.req != nil {
		if err := e.req.WaitN(ctx, a.Requests); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	if e.tok != nil && a.Tokens > 0 {
		if err := e.tok.WaitN(ctx, a.Tokens); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// Snapshot: 返回当前可用请求/令牌的“向下取整”估值（仅诊断）。
func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req != nil {
		if v := e.req.TokensAt(now); v > 0 {
			rpmAvail = int(v)
		}
	}
	if e.tok != nil {
		if v := e.tok.TokensAt(now); v > 0 {
			tpmAvail = int(v)
		}
	}
	return
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
