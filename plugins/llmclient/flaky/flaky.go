package flaky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"jdextract/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// FailTimes: 每个位置前 N 次调用失败，之后成功（默认 1）。
	FailTimes *int `json:"fail_times,omitempty"`
	// Mode: 失败形态：transport（默认，连接错误）| rate（ErrRateLimited）| parse（返回非 JSON 文本）。
	Mode string `json:"mode,omitempty"`
	// Positions: 仅这些位置注入失败；为空表示全部位置。
	Positions []int64 `json:"positions,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// errInjected: 注入的传输失败。
var errInjected = errors.New("flaky: injected transport failure")

// Client 是带状态的 LLM 实现：按位置计数，前 FailTimes 次失败，之后返回合法 JSON 对象。
type Client struct {
	prefix    string
	failTimes int
	mode      string
	only      map[contract.Position]bool
	logPath   string

	mu    sync.Mutex
	calls map[contract.Position]int
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	ft := 1
	if o.FailTimes != nil {
		ft = *o.FailTimes
	}
	switch o.Mode {
	case "":
		o.Mode = "transport"
	case "transport", "rate", "parse":
	default:
		return nil, fmt.Errorf("flaky: %w: unknown mode %q", contract.ErrInvalidInput, o.Mode)
	}
	c := &Client{prefix: o.Prefix, failTimes: ft, mode: o.Mode, logPath: o.LogPath, calls: make(map[contract.Position]int)}
	if len(o.Positions) > 0 {
		c.only = make(map[contract.Position]bool, len(o.Positions))
		for _, p := range o.Positions {
			c.only[contract.Position(p)] = true
		}
	}
	return c, nil
}

// Calls 返回某位置已发生的调用次数。
func (c *Client) Calls(pos contract.Position) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[pos]
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, rec contract.Record, p contract.Prompt) (contract.Raw, error) {
	select {
	case <-ctx.Done():
		return contract.Raw{}, ctx.Err()
	default:
	}
	c.mu.Lock()
	c.calls[rec.Position]++
	n := c.calls[rec.Position]
	c.mu.Unlock()

	inject := c.only == nil || c.only[rec.Position]
	if inject && n <= c.failTimes {
		c.log(fmt.Sprintf("%d %d %s", rec.Position, n, c.mode))
		switch c.mode {
		case "rate":
			return contract.Raw{}, contract.ErrRateLimited
		case "parse":
			return contract.Raw{Text: "invalid"}, nil
		default:
			return contract.Raw{}, errInjected
		}
	}
	c.log(fmt.Sprintf("%d %d ok", rec.Position, n))
	body, _ := json.Marshal(struct {
		Result  string `json:"结果"`
		Attempt int    `json:"尝试次数"`
	}{Result: c.prefix, Attempt: n})
	return contract.Raw{Text: string(body)}, nil
}

var _ contract.LLMClient = (*Client)(nil)
