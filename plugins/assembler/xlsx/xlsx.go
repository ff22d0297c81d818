package xlsx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"jdextract/pkg/contract"
)

// Options: 输出工作簿配置。
type Options struct {
	// SheetName: 工作表名；为空时使用 Sheet.Name，仍为空则 "Sheet1"。
	SheetName string `json:"sheet_name"`
	// BoldHeader: 表头加粗（默认 true）。
	BoldHeader *bool `json:"bold_header"`
	// TruncateLongText: 超过单元格上限（32767 字符）的文本截断（默认 true）；false 时报错。
	TruncateLongText *bool `json:"truncate_long_text"`
}

type assembler struct {
	opts     Options
	bold     bool
	truncate bool
}

// New 从原样 JSON Options 创建 xlsx 装配器。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("xlsx assembler: options: %w", err)
		}
	}
	a := &assembler{opts: o, bold: true, truncate: true}
	if o.BoldHeader != nil {
		a.bold = *o.BoldHeader
	}
	if o.TruncateLongText != nil {
		a.truncate = *o.TruncateLongText
	}
	return a, nil
}

// Assemble 以流式写入生成整张工作簿；行宽不得超过表头宽度。
func (a *assembler) Assemble(ctx context.Context, sheet contract.Sheet) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	for i, row := range sheet.Rows {
		if len(row) > len(sheet.Header) {
			return nil, fmt.Errorf("xlsx: row %d has %d cells > header %d: %w", i, len(row), len(sheet.Header), contract.ErrInvariantViolation)
		}
	}
	name := a.opts.SheetName
	if name == "" {
		name = sheet.Name
	}
	if name == "" {
		name = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()
	if name != "Sheet1" {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return nil, fmt.Errorf("xlsx: sheet name %q: %w", name, err)
		}
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("xlsx: stream writer: %w", err)
	}
	styleID := 0
	if a.bold {
		if styleID, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
			return nil, fmt.Errorf("xlsx: style: %w", err)
		}
	}
	head := make([]interface{}, len(sheet.Header))
	for i, h := range sheet.Header {
		head[i] = excelize.Cell{StyleID: styleID, Value: h}
	}
	if err := sw.SetRow("A1", head); err != nil {
		return nil, fmt.Errorf("xlsx: header: %w", err)
	}
	for i, row := range sheet.Rows {
		if i%256 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cv, err := a.cellValue(v)
			if err != nil {
				return nil, fmt.Errorf("xlsx: row %d col %d: %w", i, j, err)
			}
			cells[j] = cv
		}
		axis, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(axis, cells); err != nil {
			return nil, fmt.Errorf("xlsx: row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("xlsx: flush: %w", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: write: %w", err)
	}
	return buf, nil
}

// cellValue: nil 写为空串；超长文本按配置截断。
func (a *assembler) cellValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		if utf8.RuneCountInString(x) > excelize.TotalCellChars {
			if !a.truncate {
				return nil, fmt.Errorf("text exceeds %d chars: %w", excelize.TotalCellChars, contract.ErrInvariantViolation)
			}
			return string([]rune(x)[:excelize.TotalCellChars]), nil
		}
		return x, nil
	default:
		return x, nil
	}
}

var _ contract.Assembler = (*assembler)(nil)
