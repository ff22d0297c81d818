package judgment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"jdextract/pkg/contract"
)

// Options 为裁判文书抽取 PromptBuilder 的配置。
// 指令/模板/参考文本均为“内联优先，其次路径，均为空用内置默认”；参考文本没有内置默认，必须提供。
type Options struct {
	InlineInstructions string `json:"inline_instructions"`
	InstructionsPath   string `json:"instructions_path"`
	InlineTemplate     string `json:"inline_template"`
	TemplatePath       string `json:"template_path"`
	InlineReference    string `json:"inline_reference"`
	ReferencePath      string `json:"reference_path"`
}

// Builder: 以单行文书构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板与参考文本在构造期加载。
type Builder struct {
	instructions string
	userT        *template.Template
	reference    string
}

// templateData: user 模板可用变量。
type templateData struct {
	Reference string
	Content   string
	Position  int64
}

// New 创建 PromptBuilder。参考文本未配置或不可读时返回 ErrConfiguration。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	instr, err := pick(o.InlineInstructions, o.InstructionsPath, defaultInstructions, "instructions")
	if err != nil {
		return nil, err
	}
	src, err := pick(o.InlineTemplate, o.TemplatePath, defaultTemplate, "template")
	if err != nil {
		return nil, err
	}
	tpl, err := template.New("user").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w: template parse: %v", contract.ErrConfiguration, err)
	}
	// 参考文本只要求来源存在；文件内容为空白时照常使用。
	if o.InlineReference == "" && o.ReferencePath == "" {
		return nil, fmt.Errorf("prompt: %w: reference document is required (inline_reference or reference_path)", contract.ErrConfiguration)
	}
	ref, err := pick(o.InlineReference, o.ReferencePath, "", "reference")
	if err != nil {
		return nil, err
	}
	return &Builder{instructions: strings.TrimSpace(instr), userT: tpl, reference: ref}, nil
}

// pick: 内联 > 路径 > 默认。
func pick(inline, path, def, what string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("prompt: %w: %s read: %v", contract.ErrConfiguration, what, err)
		}
		return string(b), nil
	}
	return def, nil
}

// Build: 空白内容返回 ErrEmptyContent；否则渲染 system + user。
func (b *Builder) Build(ctx context.Context, rec contract.Record) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if strings.TrimSpace(rec.Content) == "" {
		return nil, contract.ErrEmptyContent
	}
	user, err := b.render(templateData{Reference: b.reference, Content: rec.Content, Position: int64(rec.Position)})
	if err != nil {
		return nil, err
	}
	msgs := make([]contract.Message, 0, 2)
	if b.instructions != "" {
		msgs = append(msgs, contract.Message{Role: "system", Content: b.instructions})
	}
	msgs = append(msgs, contract.Message{Role: "user", Content: user})
	return contract.ChatPrompt(msgs), nil
}

func (b *Builder) render(d templateData) (string, error) {
	var buf bytes.Buffer
	buf.Grow(len(b.reference) + len(d.Content) + 4096)
	if err := b.userT.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("prompt: %w: template render: %v", contract.ErrInvalidInput, err)
	}
	return buf.String(), nil
}

// EstimateOverheadTokens: 与行无关的固定开销（system + 参考文本 + 模板骨架）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	skeleton, err := b.render(templateData{Reference: b.reference})
	if err != nil {
		return estimate(b.instructions)
	}
	return estimate(b.instructions) + estimate(skeleton)
}

var _ contract.PromptBuilder = (*Builder)(nil)
