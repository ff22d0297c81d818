package mock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"jdextract/pkg/contract"
)

// TestFieldsMode 默认模式：确定性 JSON 对象
func TestFieldsMode(t *testing.T) {
	c, err := New(json.RawMessage(`{"prefix":"洗钱罪"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := contract.Record{Position: 2, Content: "  被告人张某通过地下钱庄转移资金  "}
	raw, err := c.Invoke(context.Background(), rec, contract.TextPrompt("p"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.Text), &m); err != nil {
		t.Fatalf("json: %v (%q)", err, raw.Text)
	}
	if m["罪名"] != "洗钱罪" || m["字数"] != float64(15) || m["摘要"] != "被告人张某通过地下钱庄转移资金" {
		t.Fatalf("unexpected %#v", m)
	}
	again, _ := c.Invoke(context.Background(), rec, contract.TextPrompt("p"))
	if again.Text != raw.Text {
		t.Fatalf("同一记录输出应确定")
	}
}

func TestOtherModes(t *testing.T) {
	rec := contract.Record{Position: 1, Content: "x"}
	fenced, _ := New(json.RawMessage(`{"response_mode":"fenced"}`))
	raw, _ := fenced.Invoke(context.Background(), rec, nil)
	if !strings.HasPrefix(raw.Text, "```json\n{") || !strings.HasSuffix(raw.Text, "}\n```") {
		t.Fatalf("fenced 输出错误: %q", raw.Text)
	}
	invalid, _ := New(json.RawMessage(`{"response_mode":"invalid"}`))
	raw, _ = invalid.Invoke(context.Background(), rec, nil)
	if json.Valid([]byte(raw.Text)) {
		t.Fatalf("invalid 模式不应输出合法 JSON: %q", raw.Text)
	}
	fixed, _ := New(json.RawMessage(`{"response_mode":"fixed","fixed":"{\"x\":1}"}`))
	raw, _ = fixed.Invoke(context.Background(), rec, nil)
	if raw.Text != `{"x":1}` {
		t.Fatalf("fixed 输出错误: %q", raw.Text)
	}
	echo, _ := New(json.RawMessage(`{"response_mode":"echo","prefix":"E"}`))
	raw, _ = echo.Invoke(context.Background(), rec, contract.ChatPrompt{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}})
	if raw.Text != "E(chat:user): u" {
		t.Fatalf("echo 输出错误: %q", raw.Text)
	}
	if _, err := New(json.RawMessage(`{"response_mode":"nope"}`)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("未知模式应报错, got %v", err)
	}
}

func TestDelayCanceled(t *testing.T) {
	c, _ := New(json.RawMessage(`{"delay_ms":1000}`))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Invoke(ctx, contract.Record{Content: "x"}, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("延迟期间应响应取消, got %v", err)
	}
}
