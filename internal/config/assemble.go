package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"jdextract/internal/pipeline"
	"jdextract/internal/rate"
	"jdextract/pkg/contract"
	"jdextract/pkg/registry"
)

// Resolve 补全组件名：显式配置优先，其次按输入/输出路径推断，最后取默认。
func Resolve(cfg Config) Components {
	d := Defaults().Components
	c := cfg.Components
	out := Components{
		Reader:        effName(c.Reader, inferReader(cfg.Input)),
		RowSource:     effName(c.RowSource, inferFormat(cfg.Input)),
		PromptBuilder: effName(c.PromptBuilder, d.PromptBuilder),
		Decoder:       effName(c.Decoder, d.Decoder),
		Assembler:     effName(c.Assembler, inferFormat(cfg.Output)),
		Writer:        effName(c.Writer, inferReader(cfg.Output)),
	}
	return out
}

func inferReader(ref string) string {
	if isS3(ref) {
		return "s3"
	}
	return "fs"
}

func inferFormat(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".csv", ".tsv":
		return "csv"
	default:
		return "xlsx"
	}
}

func isS3(ref string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ref)), "s3://")
}

// Validate 对最小必要边界做静态校验；错误均包裹 contract.ErrConfiguration。
func Validate(cfg Config) error {
	in := strings.TrimSpace(cfg.Input)
	out := strings.TrimSpace(cfg.Output)
	if in == "" {
		return cfgErr("input not set")
	}
	if out == "" || out == "-" {
		return cfgErr("output not set")
	}
	if sameTarget(in, out) {
		return cfgErr("output %q must differ from input", out)
	}
	if cfg.Concurrency < 1 {
		return cfgErr("concurrency must be >= 1")
	}
	if cfg.MaxAttempts < 1 {
		return cfgErr("max_attempts must be >= 1")
	}
	if cfg.BackoffFactorSeconds != nil && *cfg.BackoffFactorSeconds < 0 {
		return cfgErr("backoff_factor_seconds must be >= 0")
	}
	if cfg.MaxTokens < 0 {
		return cfgErr("max_tokens must be >= 0")
	}
	if cfg.BytesPerToken < 0 {
		return cfgErr("bytes_per_token must be >= 0")
	}
	if cfg.LLM == "" {
		return cfgErr("llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return cfgErr("provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return cfgErr("provider %q missing client", cfg.LLM)
	}
	if registry.LLMClient[prov.Client] == nil {
		return cfgErr("llm client %q not registered (available: %s)", prov.Client, strings.Join(registry.Names(registry.LLMClient), ", "))
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.MaxTokens > prov.Limits.MaxTokensPerReq {
		return cfgErr("max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", cfg.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	names := Resolve(cfg)
	if registry.Reader[names.Reader] == nil {
		return cfgErr("reader %q not registered (available: %s)", names.Reader, strings.Join(registry.Names(registry.Reader), ", "))
	}
	if registry.RowSource[names.RowSource] == nil {
		return cfgErr("row_source %q not registered (available: %s)", names.RowSource, strings.Join(registry.Names(registry.RowSource), ", "))
	}
	if registry.PromptBuilder[names.PromptBuilder] == nil {
		return cfgErr("prompt_builder %q not registered (available: %s)", names.PromptBuilder, strings.Join(registry.Names(registry.PromptBuilder), ", "))
	}
	if registry.Decoder[names.Decoder] == nil {
		return cfgErr("decoder %q not registered (available: %s)", names.Decoder, strings.Join(registry.Names(registry.Decoder), ", "))
	}
	if registry.Assembler[names.Assembler] == nil {
		return cfgErr("assembler %q not registered (available: %s)", names.Assembler, strings.Join(registry.Names(registry.Assembler), ", "))
	}
	if registry.Writer[names.Writer] == nil {
		return cfgErr("writer %q not registered (available: %s)", names.Writer, strings.Join(registry.Names(registry.Writer), ", "))
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var none pipeline.Components
	if err := Validate(cfg); err != nil {
		return none, pipeline.Settings{}, err
	}
	names := Resolve(cfg)
	opts := ResolveOptions(cfg)

	r, err := registry.Reader[names.Reader](opts.Reader)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("reader", names.Reader, err)
	}
	rs, err := registry.RowSource[names.RowSource](opts.RowSource)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("row_source", names.RowSource, err)
	}
	// 参考文本与输入走同一套 Reader：同类来源复用已构造实例（共享 endpoint 等选项）。
	pbRaw, err := inlineReference(context.Background(), opts.PromptBuilder, func(ref string) (contract.Reader, error) {
		name := inferReader(ref)
		if name == names.Reader {
			return r, nil
		}
		f := registry.Reader[name]
		if f == nil {
			return nil, fmt.Errorf("reader %q not registered", name)
		}
		return f(nil)
	})
	if err != nil {
		return none, pipeline.Settings{}, err
	}
	pb, err := registry.PromptBuilder[names.PromptBuilder](pbRaw)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("prompt_builder", names.PromptBuilder, err)
	}
	dec, err := registry.Decoder[names.Decoder](opts.Decoder)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("decoder", names.Decoder, err)
	}
	asm, err := registry.Assembler[names.Assembler](opts.Assembler)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("assembler", names.Assembler, err)
	}
	w, err := registry.Writer[names.Writer](opts.Writer)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("writer", names.Writer, err)
	}

	// LLM 客户端最后构造，之后不再有失败路径
	prov := cfg.Provider[cfg.LLM]
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return none, pipeline.Settings{}, factoryErr("llm", prov.Client, err)
	}

	comp := pipeline.Components{
		Reader:        r,
		RowSource:     rs,
		PromptBuilder: pb,
		LLM:           llm,
		Decoder:       dec,
		Assembler:     asm,
		Writer:        w,
	}

	// 限流 Gate：分组键从 options 中的 API Key 派生；失败则退化为 provider 名称。
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	factor := 2.0
	if cfg.BackoffFactorSeconds != nil {
		factor = *cfg.BackoffFactorSeconds
	}
	set := pipeline.Settings{
		Input:            strings.TrimSpace(cfg.Input),
		Output:           strings.TrimSpace(cfg.Output),
		ContentHeader:    cfg.ContentHeader,
		Concurrency:      cfg.Concurrency,
		MaxAttempts:      cfg.MaxAttempts,
		Backoff:          time.Duration(factor * float64(time.Second)),
		RetryParseErrors: boolOr(cfg.RetryParseErrors, false),
		MaxTokens:        cfg.MaxTokens,
		BytesPerToken:    cfg.BytesPerToken,
		Sidecar:          boolOr(cfg.Sidecar, false),
		Gate:             gate,
		GateKey:          key,
	}
	return comp, set, nil
}

func sameTarget(a, b string) bool {
	if a == "-" {
		return false
	}
	if isS3(a) || isS3(b) {
		return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

func cfgErr(format string, args ...any) error {
	return fmt.Errorf("%w: config: %s", contract.ErrConfiguration, fmt.Sprintf(format, args...))
}

func factoryErr(kind, name string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", contract.ErrConfiguration, kind, name, err)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
