package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"jdextract/pkg/contract"
)

// ResolveOptions 返回按路径补全后的组件 Options：
// .tsv 输入/输出在未显式设置 comma 时使用制表符分隔。
func ResolveOptions(cfg Config) Options {
	names := Resolve(cfg)
	opts := cfg.Options
	if names.RowSource == "csv" && isTSV(cfg.Input) {
		opts.RowSource = setDefault(opts.RowSource, "comma", "\t")
	}
	if names.Assembler == "csv" && isTSV(cfg.Output) {
		opts.Assembler = setDefault(opts.Assembler, "comma", "\t")
	}
	return opts
}

func isTSV(ref string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(ref)), ".tsv")
}

// setDefault 在 JSON 对象中补一个缺省键（缺失或为空串）；raw 非对象时原样返回，交由工厂严格解析报错。
func setDefault(raw json.RawMessage, key string, val any) json.RawMessage {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil || m == nil {
			return raw
		}
	}
	if v, ok := m[key]; ok && strings.TrimSpace(string(v)) != `""` {
		return raw
	}
	b, err := json.Marshal(val)
	if err != nil {
		return raw
	}
	m[key] = b
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// inlineReference 经 Reader 读取 reference_path（本地文件或 s3://），
// 改写为 inline_reference 交给 PromptBuilder。已有内联参考或未配置路径时原样返回。
func inlineReference(ctx context.Context, raw json.RawMessage, open func(ref string) (contract.Reader, error)) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return raw, nil
	}
	var ref, inline string
	if v, ok := m["reference_path"]; ok {
		if err := json.Unmarshal(v, &ref); err != nil {
			return raw, nil
		}
	}
	if v, ok := m["inline_reference"]; ok {
		if err := json.Unmarshal(v, &inline); err != nil {
			return raw, nil
		}
	}
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "-" || inline != "" {
		return raw, nil
	}
	r, err := open(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: config: reference %q: %w", contract.ErrConfiguration, ref, err)
	}
	rc, err := r.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: config: reference %q: %w", contract.ErrConfiguration, ref, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: config: reference %q: %w", contract.ErrConfiguration, ref, err)
	}
	if len(b) == 0 {
		// 零字节与空白参考等价；inline_reference 为空串会被视为未配置
		b = []byte("\n")
	}
	text, _ := json.Marshal(string(b))
	m["inline_reference"] = text
	delete(m, "reference_path")
	return json.Marshal(m)
}
