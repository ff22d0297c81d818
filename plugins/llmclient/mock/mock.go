package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"jdextract/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 输出前缀，默认 "MOCK"
	// APIKey: 仅用于限流分组（调试用），默认使用内置常量，不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode: 响应模式（用于集成测试与无网络联调）。
	//  - "" / "fields": 按记录产出确定性的 JSON 对象 {"罪名","字数","摘要"}。
	//  - "fenced": 同 fields，但以 ```json 围栏包裹。
	//  - "invalid": 返回无法解析的文本。
	//  - "fixed": 原样返回 Fixed。
	//  - "echo": 回显 Prompt 最后一条消息摘要。
	ResponseMode string `json:"response_mode,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	// DelayMS: 每次调用的模拟延迟（毫秒），尊重 ctx 取消。
	DelayMS int `json:"delay_ms,omitempty"`
}

type Client struct {
	prefix string
	mode   string
	fixed  string
	delay  time.Duration
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "fields"
	}
	switch mode {
	case "fields", "fenced", "invalid", "fixed", "echo":
	default:
		return nil, fmt.Errorf("mock: %w: unknown response_mode %q", contract.ErrInvalidInput, mode)
	}
	return &Client{prefix: o.Prefix, mode: mode, fixed: o.Fixed, delay: time.Duration(o.DelayMS) * time.Millisecond}, nil
}

func (c *Client) Invoke(ctx context.Context, rec contract.Record, p contract.Prompt) (contract.Raw, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return contract.Raw{}, ctx.Err()
		case <-t.C:
		}
	}
	switch c.mode {
	case "fields":
		return contract.Raw{Text: c.fields(rec)}, nil
	case "fenced":
		return contract.Raw{Text: "```json\n" + c.fields(rec) + "\n```"}, nil
	case "invalid":
		return contract.Raw{Text: fmt.Sprintf("%s: not json for row %d", c.prefix, rec.Position)}, nil
	case "fixed":
		return contract.Raw{Text: c.fixed}, nil
	}
	// echo
	switch v := p.(type) {
	case contract.TextPrompt:
		return contract.Raw{Text: fmt.Sprintf("%s(text): %s", c.prefix, string(v))}, nil
	case contract.ChatPrompt:
		if len(v) == 0 {
			return contract.Raw{Text: fmt.Sprintf("%s(chat): <empty>", c.prefix)}, nil
		}
		last := v[len(v)-1]
		return contract.Raw{Text: fmt.Sprintf("%s(chat:%s): %s", c.prefix, last.Role, last.Content)}, nil
	default:
		return contract.Raw{Text: fmt.Sprintf("%s(unknown prompt type)", c.prefix)}, nil
	}
}

// fields 产出与记录内容一一对应的确定性 JSON（键序固定）。
func (c *Client) fields(rec contract.Record) string {
	content := strings.TrimSpace(rec.Content)
	summary := content
	if utf8.RuneCountInString(summary) > 16 {
		summary = string([]rune(summary)[:16])
	}
	k1, _ := json.Marshal(c.prefix)
	k3, _ := json.Marshal(summary)
	return fmt.Sprintf(`{"罪名":%s,"字数":%d,"摘要":%s}`, k1, utf8.RuneCountInString(content), k3)
}

var _ contract.LLMClient = (*Client)(nil)
