package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jdextract/internal/diag"
	"jdextract/internal/prompt"
	"jdextract/internal/rate"
	"jdextract/pkg/contract"
)

// sleepFn 退避等待；测试可替换。
var sleepFn = sleepWithCtx

// process 对单行执行：构建提示词 → (Gate) → LLM → 解码，带有界重试。
// 第 n 次失败（0 起）后等待 Backoff×(n+1)。返回值恒为合法 Outcome。
func process(ctx context.Context, comp Components, set Settings, rec contract.Record, logger *diag.Logger) contract.Outcome {
	pos := rec.Position
	row := strconv.FormatInt(int64(pos), 10)

	p, err := comp.PromptBuilder.Build(ctx, rec)
	if err != nil {
		if errors.Is(err, contract.ErrEmptyContent) {
			logger.WarnWithKV("prompt_builder", string(diag.CodeInvariant), "empty content skipped", set.Input, row, nil)
			return contract.Failed(pos, contract.KindEmptyContent, contract.ErrEmptyContent.Error(), "", 0)
		}
		logFail(logger, "prompt_builder", "build failed", err, set.Input, row)
		return contract.Failed(pos, contract.KindUnexpected, "unexpected failure: "+err.Error(), "", 0)
	}

	tokens := 0
	if set.MaxTokens > 0 || set.Gate != nil {
		tokens = prompt.PromptTokens(p, set.BytesPerToken)
	}
	if set.MaxTokens > 0 && tokens > set.MaxTokens {
		logFail(logger, "prompt_builder", "token budget exceeded", contract.ErrBudgetExceeded, set.Input, row)
		return contract.Failed(pos, contract.KindBudget,
			fmt.Sprintf("token budget exceeded: %d > %d", tokens, set.MaxTokens), "", 0)
	}

	limit := set.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	attempts := 0
	for n := 0; n < limit; n++ {
		if set.Gate != nil {
			if err := waitGate(ctx, set, tokens, logger, row); err != nil {
				logFail(logger, "gate", "wait failed", err, set.Input, row)
				if ctx.Err() != nil {
					return aborted(pos, ctx.Err(), attempts)
				}
				return contract.Failed(pos, contract.KindBudget, "token budget exceeded: "+err.Error(), "", attempts)
			}
		}

		attempts++
		kv := map[string]string{
			"attempt": strconv.Itoa(n + 1),
			"tokens":  strconv.Itoa(tokens),
		}
		timer := logger.StartWithKV("llm_client", "invoke", set.Input, row, kv)
		raw, err := comp.LLM.Invoke(ctx, rec, p)
		if err != nil {
			if ctx.Err() != nil {
				diag.IncAttempt("cancel")
				return aborted(pos, ctx.Err(), attempts)
			}
			diag.IncAttempt("transport")
			diag.IncOp("llm_client", "error", "error")
			if code := diag.Classify(err); code != diag.CodeUnknown {
				diag.IncError("llm_client", string(code))
			}
			if n+1 >= limit {
				logFail(logger, "llm_client", "retries exhausted", err, set.Input, row)
				return contract.Failed(pos, contract.KindTransport,
					fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, err), "", attempts)
			}
			wait := backoff(set.Backoff, n)
			logger.WarnWithKV("llm_client", string(diag.Classify(err)), "attempt failed", set.Input, row, retryKV(err, n, wait))
			if serr := sleepFn(ctx, wait); serr != nil {
				return aborted(pos, serr, attempts)
			}
			continue
		}
		timer.Finish("invoke", int64(tokens))
		diag.IncOp("llm_client", "finish", "success")

		fields, err := comp.Decoder.Decode(ctx, raw)
		if err != nil {
			diag.IncAttempt("parse")
			diag.IncOp("decoder", "error", "error")
			diag.IncError("decoder", string(diag.Classify(err)))
			if set.RetryParseErrors && n+1 < limit {
				wait := backoff(set.Backoff, n)
				logger.WarnWithKV("decoder", string(diag.Classify(err)), "decode failed", set.Input, row, retryKV(err, n, wait))
				if serr := sleepFn(ctx, wait); serr != nil {
					return aborted(pos, serr, attempts)
				}
				continue
			}
			logFail(logger, "decoder", "decode failed", err, set.Input, row)
			return contract.Failed(pos, contract.KindParse, "json decode failed: "+err.Error(), raw.Text, attempts)
		}
		diag.IncAttempt("ok")
		diag.IncOp("decoder", "finish", "success")
		return contract.Outcome{Position: pos, Fields: fields, Attempts: attempts}
	}
	// limit>=1 时循环内必有返回
	return contract.Failed(pos, contract.KindUnexpected, "unexpected failure: retry loop exited", "", attempts)
}

// throttleLogAfter 闸门等待超过该时长时记录一次剩余额度。
var throttleLogAfter = time.Second

func waitGate(ctx context.Context, set Settings, tokens int, logger *diag.Logger, row string) error {
	t0 := time.Now()
	if err := set.Gate.Wait(ctx, rate.Ask{Key: set.GateKey, Requests: 1, Tokens: tokens}); err != nil {
		return err
	}
	waited := time.Since(t0)
	if waited < throttleLogAfter {
		return nil
	}
	kv := map[string]string{"wait_ms": strconv.FormatInt(waited.Milliseconds(), 10)}
	if s, ok := set.Gate.(rate.Snapshoter); ok {
		rpm, tpm := s.Snapshot(set.GateKey)
		kv["rpm_avail"] = strconv.Itoa(rpm)
		kv["tpm_avail"] = strconv.Itoa(tpm)
	}
	logger.DebugStart("gate", "throttled", set.Input, row, kv)
	return nil
}

// backoff 线性退避：factor×(n+1)。
func backoff(factor time.Duration, n int) time.Duration {
	if factor <= 0 {
		return 0
	}
	return factor * time.Duration(n+1)
}

func aborted(pos contract.Position, err error, attempts int) contract.Outcome {
	return contract.Failed(pos, contract.KindUnexpected, "unexpected failure: aborted: "+err.Error(), "", attempts)
}

func retryKV(err error, n int, wait time.Duration) map[string]string {
	kv := map[string]string{
		"attempt":    strconv.Itoa(n + 1),
		"backoff_ms": strconv.FormatInt(wait.Milliseconds(), 10),
		"err":        clip(err.Error(), 200),
	}
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv["http_status"] = strconv.Itoa(ue.UpstreamStatus())
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			kv["upstream_msg"] = clip(m, 200)
		}
	}
	return kv
}

// logFail 记录 error 事件并计数。
func logFail(logger *diag.Logger, comp, msg string, err error, source, row string) {
	code := diag.Classify(err)
	logger.ErrorWithKV(comp, string(code), msg, nil, source, row, map[string]string{"err": clip(err.Error(), 200)})
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// sleepWithCtx 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
