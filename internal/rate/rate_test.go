package rate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"jdextract/pkg/contract"
)

// UT-RTE-01: Wait 扣减额度，Snapshot 反映剩余
func TestGateWaitSnapshot(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 60, TPM: 100}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 1, Tokens: 30}); err != nil {
		t.Fatalf("首次等待应立即通过: %v", err)
	}
	rpm, tpm := g.(Snapshoter).Snapshot("k")
	if rpm != 59 || tpm != 70 {
		t.Fatalf("快照错误: rpm=%d tpm=%d", rpm, tpm)
	}
	// 未启用的维度与未配置的 key 快照为 0
	g = NewGate(map[LimitKey]Limits{"k": {TPM: 10}}, nil)
	if rpm, _ := g.(Snapshoter).Snapshot("k"); rpm != 0 {
		t.Fatalf("RPM 未启用应为 0: %d", rpm)
	}
	if rpm, tpm := g.(Snapshoter).Snapshot("other"); rpm != 0 || tpm != 0 {
		t.Fatalf("未配置 key 应为 0: %d %d", rpm, tpm)
	}
}

// 注入时钟：快照按给定时刻估算补充量
func TestGateSnapshotClock(t *testing.T) {
	now := time.Now()
	g := NewGate(map[LimitKey]Limits{"k": {TPM: 60}}, func() time.Time { return now })
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 1, Tokens: 60}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, tpm := g.(Snapshoter).Snapshot("k"); tpm != 60 {
		t.Fatalf("补充后应封顶为容量: %d", tpm)
	}
}

// UT-RTE-02: 取消上下文
func TestGateWaitCancel(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 1}); err != nil {
		t.Fatalf("首次等待应立即通过: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := g.Wait(ctx, Ask{Key: "k", Requests: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}

func TestGateWaitRejects(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 2, TPM: 100, MaxTokensPerReq: 50}}, nil)
	ctx := context.Background()
	if err := g.Wait(ctx, Ask{Key: "k", Requests: 0}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("Requests=0 应为非法输入, got %v", err)
	}
	if err := g.Wait(ctx, Ask{Key: "k", Requests: 3}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("超过 RPM 容量应为非法输入, got %v", err)
	}
	if err := g.Wait(ctx, Ask{Key: "k", Requests: 1, Tokens: 60}); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("超过单请求上限应为预算错误, got %v", err)
	}
	// 未配置的 key 不限额
	for i := 0; i < 100; i++ {
		if err := g.Wait(ctx, Ask{Key: "other", Requests: 1, Tokens: 1000}); err != nil {
			t.Fatalf("未配置 key 不应限流: %v", err)
		}
	}
}

// 补充覆盖: DeriveKeyFromProviderOptions
func TestDeriveKeyFromProviderOptions(t *testing.T) {
	t.Setenv("TEST_KEY", "abc")
	raw, _ := json.Marshal(map[string]any{"api_key_env": "TEST_KEY"})
	k, err := DeriveKeyFromProviderOptions("gemini", raw)
	if err != nil || !strings.HasPrefix(string(k), "gemini:") {
		t.Fatalf("派生失败: %v %q", err, k)
	}
	k2, _ := DeriveKeyFromProviderOptions("gemini", json.RawMessage(`{"api_key":"abc"}`))
	if k != k2 {
		t.Fatalf("同一 key 应得到相同分组: %q vs %q", k, k2)
	}
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := DeriveKeyFromProviderOptions("openai", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("缺少 key 应失败")
	}
	// 未指定 api_key_env 时按客户端缺省环境变量取值
	t.Setenv("GOOGLE_API_KEY", "abc")
	if k3, err := DeriveKeyFromProviderOptions("gemini", nil); err != nil || k3 != k {
		t.Fatalf("应使用 GOOGLE_API_KEY: %v %q", err, k3)
	}
	for _, c := range []string{"mock", "flaky"} {
		if k, err := DeriveKeyFromProviderOptions(c, json.RawMessage(`{}`)); err != nil || k == "" {
			t.Fatalf("%s 应回退内置 key: %v", c, err)
		}
	}
}
