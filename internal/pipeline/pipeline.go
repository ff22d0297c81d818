package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"jdextract/internal/diag"
	"jdextract/internal/prompt"
	"jdextract/internal/rate"
	"jdextract/internal/table"
	"jdextract/pkg/contract"
)

// - 单点并发：仅 dispatch 管理并发；原子组件均为同步实现。
// - 每行恰好一个终态结果；单行失败只进入结果表，不中止批次。
// - 全部行完成后一次性装配与写出，结果按 Position 升序。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader        contract.Reader
	RowSource     contract.RowSource
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Decoder       contract.Decoder
	Assembler     contract.Assembler
	Writer        contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Input  string
	Output string
	// ContentHeader 输出中正文列的表头，空则取 table.DefaultContentHeader。
	ContentHeader string
	Concurrency   int
	// MaxAttempts 每行 oracle 调用总次数上限（>=1）。
	MaxAttempts int
	// Backoff 线性退避系数：第 n 次失败后等待 Backoff×(n+1)。
	Backoff time.Duration
	// RetryParseErrors 为 true 时解析失败也走退避重试。
	RetryParseErrors bool
	// 预算：<=0 关闭
	MaxTokens     int
	BytesPerToken int
	// Sidecar 额外写出 <Output>.jsonl。
	Sidecar bool
	// 限流闸门（可选）
	Gate    rate.Gate
	GateKey rate.LimitKey
}

// Report 运行结果。写出失败时 Outcomes 依然完整保留。
type Report struct {
	Records  []contract.Record
	Outcomes []contract.Outcome
	Sheet    contract.Sheet
	OK       int
	Failed   int
	Duration time.Duration
}

// Run 执行：Reader → RowSource → 并发(Prompt → Gate → LLM → Decoder) → table → Assembler → Writer。
// 返回的 error 只来自启动期配置问题、取消或最终写出；行级失败体现在 Report 中。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*Report, error) {
	if err := sanity(comp, set); err != nil {
		return nil, err
	}
	start := time.Now()

	if set.MaxTokens > 0 {
		eff, overhead := prompt.EffectiveMaxTokens(comp.PromptBuilder, set.BytesPerToken, set.MaxTokens)
		if eff <= 0 {
			return nil, fmt.Errorf("%w: %w: prompt overhead %d tokens >= max_tokens %d",
				contract.ErrConfiguration, contract.ErrBudgetExceeded, overhead, set.MaxTokens)
		}
	}

	recs, err := load(ctx, comp, set, logger)
	if err != nil {
		return nil, err
	}

	term := diag.GetTerminal()
	term.TaskStart(set.Input, len(recs))
	ok := false
	defer func() { term.TaskFinish(ok, time.Since(start)) }()

	dtimer := logger.StartWith("dispatcher", "dispatch", set.Input, "")
	outs := dispatch(ctx, recs, set.Concurrency, func(ctx context.Context, rec contract.Record) contract.Outcome {
		return process(ctx, comp, set, rec, logger)
	}, logger, set.Input)
	dtimer.Finish("dispatch", int64(len(outs)))

	rep := &Report{Records: recs, Outcomes: outs}
	for _, o := range outs {
		if o.Err != nil {
			rep.Failed++
		} else {
			rep.OK++
		}
	}
	defer func() { rep.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		logFail(logger, "dispatcher", "run aborted", err, set.Input, "")
		return rep, fmt.Errorf("run aborted: %w", err)
	}

	sheet, err := table.Build(recs, outs, set.ContentHeader)
	if err != nil {
		logFail(logger, "table", "build failed", err, set.Input, "")
		return rep, fmt.Errorf("table build: %w", err)
	}
	rep.Sheet = sheet

	var errs []error
	// 边车先于主产物写出，主产物失败时仍可保留结果。
	if set.Sidecar {
		if err := writeSidecar(ctx, comp.Writer, set.Output+".jsonl", recs, outs); err != nil {
			logFail(logger, "writer", "sidecar write failed", err, set.Output+".jsonl", "")
			errs = append(errs, fmt.Errorf("%w: sidecar: %w", contract.ErrPersistence, err))
		}
	}
	if err := persist(ctx, comp, set, sheet, logger); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return rep, errors.Join(errs...)
	}
	ok = true
	return rep, nil
}

func load(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]contract.Record, error) {
	rtimer := logger.StartWith("reader", "open", set.Input, "")
	rc, err := comp.Reader.Open(ctx, set.Input)
	if err != nil {
		logFail(logger, "reader", "open failed", err, set.Input, "")
		return nil, fmt.Errorf("reader open: %w", err)
	}
	defer rc.Close()
	rtimer.Finish("open", 0)
	diag.IncOp("reader", "finish", "success")

	stimer := logger.StartWith("row_source", "load", set.Input, "")
	recs, err := comp.RowSource.Load(ctx, rc)
	if err != nil {
		logFail(logger, "row_source", "load failed", err, set.Input, "")
		return nil, fmt.Errorf("row source load: %w", err)
	}
	stimer.Finish("load", int64(len(recs)))
	diag.IncOp("row_source", "finish", "success")
	return recs, nil
}

func persist(ctx context.Context, comp Components, set Settings, sheet contract.Sheet, logger *diag.Logger) error {
	atimer := logger.StartWith("assembler", "assemble", set.Output, "")
	r, err := comp.Assembler.Assemble(ctx, sheet)
	if err != nil {
		logFail(logger, "assembler", "assemble failed", err, set.Output, "")
		return fmt.Errorf("%w: assemble: %w", contract.ErrPersistence, err)
	}
	atimer.Finish("assemble", int64(len(sheet.Rows)))
	diag.IncOp("assembler", "finish", "success")

	wtimer := logger.StartWith("writer", "write", set.Output, "")
	if err := comp.Writer.Write(ctx, contract.ArtifactID(set.Output), r); err != nil {
		logFail(logger, "writer", "write failed", err, set.Output, "")
		return fmt.Errorf("%w: write %s: %w", contract.ErrPersistence, set.Output, err)
	}
	wtimer.Finish("write", 1)
	diag.IncOp("writer", "finish", "success")
	return nil
}

// sidecarLine JSONL 边车中的一行。
type sidecarLine struct {
	Position int64                 `json:"position"`
	Content  string                `json:"content"`
	Fields   *contract.Fields      `json:"fields,omitempty"`
	Error    *contract.ErrorRecord `json:"error,omitempty"`
	Attempts int                   `json:"attempts"`
}

func writeSidecar(ctx context.Context, w contract.Writer, id string, recs []contract.Record, outs []contract.Outcome) error {
	content := make(map[contract.Position]string, len(recs))
	for _, r := range recs {
		content[r.Position] = r.Content
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, o := range outs {
		line := sidecarLine{
			Position: int64(o.Position),
			Content:  content[o.Position],
			Fields:   o.Fields,
			Error:    o.Err,
			Attempts: o.Attempts,
		}
		if err := enc.Encode(&line); err != nil {
			return err
		}
	}
	return w.Write(ctx, contract.ArtifactID(id), &buf)
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.RowSource == nil || c.PromptBuilder == nil || c.LLM == nil ||
		c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return fmt.Errorf("%w: pipeline: missing components", contract.ErrConfiguration)
	}
	if strings.TrimSpace(s.Input) == "" {
		return fmt.Errorf("%w: pipeline: empty input", contract.ErrConfiguration)
	}
	if strings.TrimSpace(s.Output) == "" {
		return fmt.Errorf("%w: pipeline: empty output", contract.ErrConfiguration)
	}
	return nil
}

// Close 释放实现了 io.Closer 的组件（如 Gemini SDK 连接）。
func (c Components) Close() error {
	if cl, ok := c.LLM.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
