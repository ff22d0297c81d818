package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Input 输入表格：本地路径、"-"（STDIN）或 s3://bucket/key。
	Input string `json:"input"`
	// Output 输出工件标识：本地路径或 s3://bucket/key。
	Output string `json:"output"`
	// ContentHeader 输出中正文列的表头，默认 "文书内容"。
	ContentHeader string `json:"content_header,omitempty"`

	Concurrency int `json:"concurrency"`
	// MaxAttempts: 每行 oracle 调用总次数上限（>=1）。
	MaxAttempts int `json:"max_attempts"`
	// BackoffFactorSeconds: 线性退避系数（秒），第 n 次失败后等待 factor×(n+1)。
	BackoffFactorSeconds *float64 `json:"backoff_factor_seconds,omitempty"`
	// RetryParseErrors: 解析失败是否也重试（默认 false）。
	RetryParseErrors *bool `json:"retry_parse_errors,omitempty"`
	// MaxTokens: 单行提示词 token 预算；0 关闭。
	MaxTokens     int   `json:"max_tokens"`
	BytesPerToken int   `json:"bytes_per_token,omitempty"`
	Sidecar       *bool `json:"sidecar,omitempty"`

	Logging Logging `json:"logging"`
	Metrics Metrics `json:"metrics"`

	// 组件名选择；为空时按输入/输出路径推断。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: zap JSON 日志写入滚动文件。
type Logging struct {
	Level    string `json:"level"`
	Dir      string `json:"dir,omitempty"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

// Metrics: 进程退出时导出 Prometheus 文本格式。
type Metrics struct {
	Textfile string `json:"textfile,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	RowSource     string `json:"row_source"`
	PromptBuilder string `json:"prompt_builder"`
	Decoder       string `json:"decoder"`
	Assembler     string `json:"assembler"`
	Writer        string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader,omitempty"`
	RowSource     json.RawMessage `json:"row_source,omitempty"`
	PromptBuilder json.RawMessage `json:"prompt_builder,omitempty"`
	Decoder       json.RawMessage `json:"decoder,omitempty"`
	Assembler     json.RawMessage `json:"assembler,omitempty"`
	Writer        json.RawMessage `json:"writer,omitempty"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options,omitempty"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}
