package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix 环境变量前缀。
const EnvPrefix = "JDX_"

// Defaults 返回带有安全默认值的 Config 雏形。
// reader/row_source/assembler/writer 留空，由输入/输出路径推断。
func Defaults() Config {
	factor := 2.0
	off := false
	return Config{
		Concurrency:          5,
		MaxAttempts:          3,
		BackoffFactorSeconds: &factor,
		RetryParseErrors:     &off,
		BytesPerToken:        4,
		Sidecar:              &off,
		Logging:              Logging{Level: "info", Dir: "logs", MaxBytes: 10 << 20},
		Components: Components{
			PromptBuilder: "judgment",
			Decoder:       "fieldjson",
		},
		LLM: "gemini",
		Provider: map[string]Provider{
			"gemini": {Client: "gemini"},
		},
		Options: Options{
			PromptBuilder: json.RawMessage(`{"reference_path":"upstream_crime_types.md"}`),
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	out.Provider = cloneProviders(base.Provider)

	if s := strings.TrimSpace(over.Input); s != "" {
		out.Input = s
	}
	if s := strings.TrimSpace(over.Output); s != "" {
		out.Output = s
	}
	if over.ContentHeader != "" {
		out.ContentHeader = over.ContentHeader
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.MaxAttempts != 0 {
		out.MaxAttempts = over.MaxAttempts
	}
	if over.BackoffFactorSeconds != nil {
		v := *over.BackoffFactorSeconds
		out.BackoffFactorSeconds = &v
	}
	if over.RetryParseErrors != nil {
		v := *over.RetryParseErrors
		out.RetryParseErrors = &v
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}
	if over.BytesPerToken != 0 {
		out.BytesPerToken = over.BytesPerToken
	}
	if over.Sidecar != nil {
		v := *over.Sidecar
		out.Sidecar = &v
	}

	// Logging / Metrics
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	if over.Logging.MaxBytes != 0 {
		out.Logging.MaxBytes = over.Logging.MaxBytes
	}
	if s := strings.TrimSpace(over.Metrics.Textfile); s != "" {
		out.Metrics.Textfile = s
	}

	// 组件名（空不覆盖）
	mergeName(&out.Components.Reader, over.Components.Reader)
	mergeName(&out.Components.RowSource, over.Components.RowSource)
	mergeName(&out.Components.PromptBuilder, over.Components.PromptBuilder)
	mergeName(&out.Components.Decoder, over.Components.Decoder)
	mergeName(&out.Components.Assembler, over.Components.Assembler)
	mergeName(&out.Components.Writer, over.Components.Writer)

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		if out.Provider == nil {
			out.Provider = make(map[string]Provider, len(over.Provider))
		}
		for k, v := range over.Provider {
			v.Options = cloneRaw(v.Options)
			out.Provider[k] = v
		}
	}

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.RowSource, over.Options.RowSource)
	mergeRaw(&out.Options.PromptBuilder, over.Options.PromptBuilder)
	mergeRaw(&out.Options.Decoder, over.Options.Decoder)
	mergeRaw(&out.Options.Assembler, over.Options.Assembler)
	mergeRaw(&out.Options.Writer, over.Options.Writer)

	if s := strings.TrimSpace(over.LLM); s != "" {
		out.LLM = s
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖。
// 规则：前缀 JDX_；集合之外的键忽略；数值解析失败返回错误。
// 支持：INPUT, OUTPUT, CONTENT_HEADER, CONCURRENCY, MAX_ATTEMPTS, BACKOFF_FACTOR_SECONDS,
// RETRY_PARSE_ERRORS, MAX_TOKENS, BYTES_PER_TOKEN, SIDECAR, LOG_LEVEL, LOG_DIR, METRICS_TEXTFILE, LLM, COMPONENTS_*
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[:eq]
		val := kv[eq+1:]
		nk := strings.TrimPrefix(key, EnvPrefix)
		var err error
		switch nk {
		case "INPUT":
			over.Input = strings.TrimSpace(val)
		case "OUTPUT":
			over.Output = strings.TrimSpace(val)
		case "CONTENT_HEADER":
			over.ContentHeader = val
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "MAX_ATTEMPTS":
			over.MaxAttempts, err = atoi(val)
		case "MAX_TOKENS":
			over.MaxTokens, err = atoi(val)
		case "BYTES_PER_TOKEN":
			over.BytesPerToken, err = atoi(val)
		case "BACKOFF_FACTOR_SECONDS":
			var f float64
			if f, err = strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				over.BackoffFactorSeconds = &f
			}
		case "RETRY_PARSE_ERRORS":
			var b bool
			if b, err = strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				over.RetryParseErrors = &b
			}
		case "SIDECAR":
			var b bool
			if b, err = strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				over.Sidecar = &b
			}
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "METRICS_TEXTFILE":
			over.Metrics.Textfile = strings.TrimSpace(val)
		case "LLM":
			over.LLM = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_ROW_SOURCE":
			over.Components.RowSource = strings.TrimSpace(val)
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = strings.TrimSpace(val)
		case "COMPONENTS_DECODER":
			over.Components.Decoder = strings.TrimSpace(val)
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if !strings.HasPrefix(nk, "PROVIDER__") {
				continue
			}
			parts := strings.Split(nk, "__")
			if len(parts) < 3 {
				continue
			}
			name := strings.TrimSpace(parts[1])
			field := strings.Join(parts[2:], "__")
			p := prov[name]
			changed := false
			var n int
			switch field {
			case "CLIENT":
				if tv := strings.TrimSpace(val); tv != "" {
					p.Client = tv
					changed = true
				}
			case "LIMITS_RPM":
				if n, err = atoi(val); err == nil {
					p.Limits.RPM, changed = n, true
				}
			case "LIMITS_TPM":
				if n, err = atoi(val); err == nil {
					p.Limits.TPM, changed = n, true
				}
			case "LIMITS_MAX_TOKENS_PER_REQ":
				if n, err = atoi(val); err == nil {
					p.Limits.MaxTokensPerReq, changed = n, true
				}
			case "OPTIONS_JSON":
				// 空值视为未设置，避免清空现有配置
				if strings.TrimSpace(val) != "" {
					if !json.Valid([]byte(val)) {
						err = errors.New("invalid json")
					} else {
						p.Options = json.RawMessage(val)
						changed = true
					}
				}
			}
			if changed {
				prov[name] = p
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s: %w", key, err)
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func mergeName(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func mergeRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

func cloneProviders(in map[string]Provider) map[string]Provider {
	if in == nil {
		return nil
	}
	out := make(map[string]Provider, len(in))
	for k, v := range in {
		v.Options = cloneRaw(v.Options)
		out[k] = v
	}
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
