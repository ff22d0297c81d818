package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"jdextract/pkg/contract"
)

// Options: CSV 输出配置。
type Options struct {
	// BOM: 写入 UTF-8 BOM 以便 Excel 正确识别中文（默认 true）。
	BOM *bool `json:"bom"`
	// Comma: 字段分隔符（单字符），默认 ","。
	Comma string `json:"comma"`
}

type assembler struct {
	bom   bool
	comma rune
}

// New 从原样 JSON Options 创建 csv 装配器。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("csv assembler: options: %w", err)
		}
	}
	a := &assembler{bom: true, comma: ','}
	if o.BOM != nil {
		a.bom = *o.BOM
	}
	if o.Comma != "" {
		rs := []rune(o.Comma)
		if o.Comma == `\t` {
			rs = []rune{'\t'}
		}
		if len(rs) != 1 || rs[0] == '"' || rs[0] == '\n' || rs[0] == '\r' {
			return nil, fmt.Errorf("csv assembler: %w: invalid comma %q", contract.ErrConfiguration, o.Comma)
		}
		a.comma = rs[0]
	}
	return a, nil
}

func (a *assembler) Assemble(ctx context.Context, sheet contract.Sheet) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var buf bytes.Buffer
	if a.bom {
		buf.WriteString("\xEF\xBB\xBF")
	}
	w := csv.NewWriter(&buf)
	w.Comma = a.comma
	if err := w.Write(sheet.Header); err != nil {
		return nil, err
	}
	rec := make([]string, len(sheet.Header))
	for i, row := range sheet.Rows {
		if len(row) > len(sheet.Header) {
			return nil, fmt.Errorf("csv: row %d has %d cells > header %d: %w", i, len(row), len(sheet.Header), contract.ErrInvariantViolation)
		}
		for j := range rec {
			rec[j] = ""
			if j < len(row) {
				rec[j] = format(row[j])
			}
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

var _ contract.Assembler = (*assembler)(nil)
