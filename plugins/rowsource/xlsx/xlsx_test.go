package xlsx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"jdextract/pkg/contract"
	"jdextract/plugins/rowsource/grid"
)

// buildBook 生成内存工作簿：Sheet1 为 [序号, 文书内容]，另有一张备用表。
func buildBook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if _, err := f.NewSheet("其他"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	_ = f.SetCellValue("其他", "A1", "表头")
	_ = f.SetCellValue("其他", "A2", "另一张表")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf
}

// UT-XLS-01: 默认读取首个工作表 B 列
func TestLoadDefault(t *testing.T) {
	buf := buildBook(t, [][]any{
		{"序号", "文书内容"},
		{1, "文书一"},
		{2, ""},
		{3, "文书三"},
	})
	recs, err := New(nil).Load(context.Background(), buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("期望 3 行, got %d", len(recs))
	}
	if recs[0].Content != "文书一" || recs[1].Content != "" || recs[2].Content != "文书三" || recs[2].Position != 2 {
		t.Fatalf("解析结果错误: %#v", recs)
	}
}

// UT-XLS-02: 指定工作表与列
func TestLoadSheetAndColumn(t *testing.T) {
	buf := buildBook(t, [][]any{{"h", "h2"}})
	col := 0
	recs, err := New(&Options{Sheet: "其他", Options: grid.Options{Column: &col}}).Load(context.Background(), buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 1 || recs[0].Content != "另一张表" {
		t.Fatalf("指定表读取错误: %#v", recs)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := New(nil).Load(context.Background(), strings.NewReader("not a zip")); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("非 xlsx 应为配置错误, got %v", err)
	}
	buf := buildBook(t, [][]any{{"a", "b"}})
	if _, err := New(&Options{Sheet: "不存在"}).Load(context.Background(), buf); !errors.Is(err, contract.ErrConfiguration) {
		t.Fatalf("工作表不存在应为配置错误, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).Load(ctx, strings.NewReader("")); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}
