package registry

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"jdextract/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		isolateAWS(t)
		for _, name := range []string{"fs", "s3"} {
			if _, err := Reader[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("reader %s: %v", name, err)
			}
			if _, err := Reader[name](json.RawMessage(`{"x":1}`)); err == nil {
				t.Fatalf("reader %s 未对未知字段报错", name)
			}
		}
	})
	t.Run("rowsource", func(t *testing.T) {
		for _, name := range []string{"xlsx", "csv"} {
			if _, err := RowSource[name](json.RawMessage(`{"column":1,"carry_columns":["案号"]}`)); err != nil {
				t.Fatalf("rowsource %s: %v", name, err)
			}
			if _, err := RowSource[name](json.RawMessage(`{"x":1}`)); err == nil {
				t.Fatalf("rowsource %s 未对未知字段报错", name)
			}
		}
		if _, err := RowSource["csv"](json.RawMessage(`{"comma":";;"}`)); err == nil {
			t.Fatalf("多字符分隔符应报错")
		}
	})
	t.Run("prompt", func(t *testing.T) {
		raw := json.RawMessage(`{"inline_reference":"危险驾驶罪"}`)
		if _, err := PromptBuilder["judgment"](raw); err != nil {
			t.Fatalf("prompt: %v", err)
		}
		if _, err := PromptBuilder["judgment"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrConfiguration) {
			t.Fatalf("缺少参考资料应为配置错误: %v", err)
		}
		if _, err := PromptBuilder["judgment"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("prompt 未对未知字段报错")
		}
	})
	t.Run("decoder", func(t *testing.T) {
		if _, err := Decoder["fieldjson"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("decoder: %v", err)
		}
	})
	t.Run("assembler", func(t *testing.T) {
		for _, name := range []string{"xlsx", "csv"} {
			if _, err := Assembler[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("assembler %s: %v", name, err)
			}
		}
	})
	t.Run("writer", func(t *testing.T) {
		isolateAWS(t)
		raw := json.RawMessage(`{"base_dir":` + jsonString(t.TempDir()) + `}`)
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		if _, err := Writer["fs"](json.RawMessage(`{"output_dir":"x"}`)); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
		if _, err := Writer["s3"](json.RawMessage(`{"bucket":"out","region":"us-east-1"}`)); err != nil {
			t.Fatalf("writer s3: %v", err)
		}
	})
	t.Run("llm-mock", func(t *testing.T) {
		for _, name := range []string{"mock", "flaky"} {
			if _, err := LLMClient[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
	})
	t.Run("llm-openai", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		if _, err := LLMClient["openai"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("openai 未按预期报错: %v", err)
		}
	})
	t.Run("llm-gemini", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		if _, err := LLMClient["gemini"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("gemini 未按预期报错: %v", err)
		}
	})
}

func TestNames(t *testing.T) {
	if got := Names(LLMClient); !reflect.DeepEqual(got, []string{"flaky", "gemini", "mock", "openai"}) {
		t.Fatalf("names=%v", got)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
