package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"jdextract/internal/diag"
	"jdextract/pkg/contract"
)

// rowFunc 处理单行并返回终态结果。
type rowFunc func(ctx context.Context, rec contract.Record) contract.Outcome

// dispatch 以 workers 个并发处理 recs，结果按输入下标写入预分配切片。
// 每个下标恰好一个 Outcome；单行 panic 转为 unexpected 错误，不影响其他行。
func dispatch(ctx context.Context, recs []contract.Record, workers int, fn rowFunc, logger *diag.Logger, source string) []contract.Outcome {
	if workers < 1 {
		workers = 1
	}
	if workers > len(recs) && len(recs) > 0 {
		workers = len(recs)
	}
	out := make([]contract.Outcome, len(recs))

	var (
		mu     sync.Mutex
		done   int
		errCnt int
	)
	report := func(o contract.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if o.Err != nil {
			errCnt++
		}
		diag.IncRow(o.Err == nil)
		if t := diag.GetTerminal(); t != nil {
			t.Progress(done, len(recs), errCnt)
		}
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range recs {
			select {
			case <-gctx.Done():
				return nil
			case jobs <- i:
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				o := safeCall(gctx, fn, recs[i], logger, source)
				out[i] = o
				report(o)
			}
			return nil
		})
	}
	_ = g.Wait()

	// 取消后未派发的行补齐为 unexpected
	for i := range out {
		if !out[i].Valid() {
			reason := "not processed"
			if err := ctx.Err(); err != nil {
				reason = "not processed: " + err.Error()
			}
			out[i] = contract.Failed(recs[i].Position, contract.KindUnexpected, "unexpected failure: "+reason, "", 0)
			report(out[i])
		}
	}
	return out
}

func safeCall(ctx context.Context, fn rowFunc, rec contract.Record, logger *diag.Logger, source string) (o contract.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			row := strconv.FormatInt(int64(rec.Position), 10)
			logger.ErrorWithKV("dispatcher", string(diag.CodeUnknown), "row panicked", nil, source, row, map[string]string{"panic": clip(fmt.Sprint(r), 200)})
			diag.IncOp("dispatcher", "error", "error")
			o = contract.Failed(rec.Position, contract.KindUnexpected, fmt.Sprintf("unexpected failure: %v", r), "", 0)
		}
	}()
	o = fn(ctx, rec)
	o.Position = rec.Position
	if !o.Valid() {
		o = contract.Failed(rec.Position, contract.KindUnexpected, "unexpected failure: row produced no result", "", o.Attempts)
	}
	return o
}
