package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"

	"jdextract/pkg/contract"
)

// Options: Gemini（google generative-ai-go SDK）最小必需。
type Options struct {
	Model     string `json:"model"`       // 默认 gemini-2.5-flash-preview-05-20
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 单次调用超时（秒）。未设置或 <=0 时采用默认 120 秒。
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// 采样温度；未设置时为 0（确定性输出）。
	Temperature *float32 `json:"temperature,omitempty"`
	// ResponseMIMEType: 例如 application/json；为空则不限制。
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
	// Endpoint: 覆盖默认服务地址（私有代理/测试）。
	Endpoint string `json:"endpoint,omitempty"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash-preview-05-20"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 120
	}
	if o.Temperature == nil {
		var z float32
		o.Temperature = &z
	}
}

// call: 一次生成请求的 SDK 无关形状。
type call struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
}

type Client struct {
	opts    Options
	sdk     *genai.Client
	timeout time.Duration
	// generate 为可替换的 SDK 调用点（测试注入）。
	generate func(ctx context.Context, c call) (*genai.GenerateContentResponse, error)
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, err
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	copts := []option.ClientOption{option.WithAPIKey(key)}
	if opts.Endpoint != "" {
		copts = append(copts, option.WithEndpoint(opts.Endpoint))
	}
	sdk, err := genai.NewClient(context.Background(), copts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c := newClient(opts)
	c.sdk = sdk
	c.generate = c.sdkGenerate
	return c, nil
}

func newClient(opts Options) *Client {
	return &Client{opts: opts, timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
}

// Close 释放 SDK 连接。
func (c *Client) Close() error {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func (c *Client) sdkGenerate(ctx context.Context, in call) (*genai.GenerateContentResponse, error) {
	m := c.sdk.GenerativeModel(c.opts.Model)
	m.SetTemperature(*c.opts.Temperature)
	if c.opts.ResponseMIMEType != "" {
		m.ResponseMIMEType = c.opts.ResponseMIMEType
	}
	if in.system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(in.system)}}
	}
	if len(in.history) == 0 {
		return m.GenerateContent(ctx, in.parts...)
	}
	cs := m.StartChat()
	cs.History = in.history
	return cs.SendMessage(ctx, in.parts...)
}

// splitPrompt: system 消息合并为 SystemInstruction；最后一条 user 作为本轮输入，其余进入历史。
func splitPrompt(p contract.Prompt) (call, error) {
	var out call
	switch v := p.(type) {
	case contract.TextPrompt:
		out.parts = []genai.Part{genai.Text(string(v))}
	case contract.ChatPrompt:
		var sys []string
		var turns []*genai.Content
		for _, m := range v {
			role := normalizeGeminiRole(m.Role)
			if role == "system" {
				sys = append(sys, m.Content)
				continue
			}
			turns = append(turns, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
		}
		if len(turns) == 0 {
			return call{}, fmt.Errorf("gemini: %w: prompt has no user turn", contract.ErrInvalidInput)
		}
		out.system = strings.Join(sys, "\n\n")
		out.history = turns[:len(turns)-1]
		out.parts = turns[len(turns)-1].Parts
	default:
		return call{}, fmt.Errorf("gemini: %w: unsupported prompt %T", contract.ErrInvalidInput, p)
	}
	return out, nil
}

// normalizeGeminiRole 将通用 Chat 角色映射为 Gemini 支持的集合：system|user|model。
func normalizeGeminiRole(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "system":
		return "system"
	case "model", "assistant":
		return "model"
	default:
		return "user"
	}
}

// upstreamError 实现 net.Error，用于将上游 5xx/408 映射为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// mapError: 429/ResourceExhausted → ErrRateLimited；其余 API 错误保留状态码与消息。
func mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	var be *genai.BlockedError
	if errors.As(err, &be) {
		return fmt.Errorf("gemini: blocked: %v: %w", be, contract.ErrResponseInvalid)
	}
	if ae, ok := apierror.FromError(err); ok {
		status := ae.HTTPCode()
		if st := ae.GRPCStatus(); status <= 0 && st != nil {
			if st.Code().String() == "ResourceExhausted" {
				status = http.StatusTooManyRequests
			}
		}
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("gemini: %v: %w", ae.Reason(), contract.ErrRateLimited)
		}
		return upstreamError{status: status, msg: ae.Error()}
	}
	return err
}

func (c *Client) Invoke(ctx context.Context, rec contract.Record, p contract.Prompt) (contract.Raw, error) {
	in, err := splitPrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.generate(cctx, in)
	if err != nil {
		// 外层 ctx 仍有效时，单次超时按上游超时处理（可重试）
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return contract.Raw{}, upstreamError{status: http.StatusRequestTimeout, msg: "call timed out"}
		}
		return contract.Raw{}, mapError(ctx, err)
	}
	text := responseText(resp)
	if text == "" {
		return contract.Raw{}, fmt.Errorf("gemini: empty candidates: %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: text}, nil
}

// responseText 拼接首个候选的全部文本片段。
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

var _ contract.LLMClient = (*Client)(nil)
