package csv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"jdextract/pkg/contract"
)

// UT-CAS-01: BOM + 值格式化
func TestAssemble(t *testing.T) {
	a, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r, err := a.Assemble(context.Background(), contract.Sheet{
		Header: []string{"文书内容", "金额", "ok", "备注"},
		Rows: [][]any{
			{"含,逗号", 12.5, true},
			{"b", int64(3), nil, "x"},
		},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	b, _ := io.ReadAll(r)
	want := "\xEF\xBB\xBF文书内容,金额,ok,备注\n\"含,逗号\",12.5,true,\nb,3,,x\n"
	if string(b) != want {
		t.Fatalf("输出错误:\n%q\nwant\n%q", b, want)
	}
}

func TestAssembleOptions(t *testing.T) {
	a, err := New(json.RawMessage(`{"bom":false,"comma":"\\t"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r, _ := a.Assemble(context.Background(), contract.Sheet{Header: []string{"a", "b"}, Rows: [][]any{{"1", "2"}}})
	b, _ := io.ReadAll(r)
	if string(b) != "a\tb\n1\t2\n" {
		t.Fatalf("TSV 输出错误: %q", b)
	}
	if _, err := New(json.RawMessage(`{"comma":"ab"}`)); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("非法分隔符应报错, got %v", err)
	}
	if _, err := a.Assemble(context.Background(), contract.Sheet{Header: []string{"a"}, Rows: [][]any{{1, 2}}}); !errors.Is(err, contract.ErrInvariantViolation) {
		t.Fatalf("行宽超过表头应报错, got %v", err)
	}
}
