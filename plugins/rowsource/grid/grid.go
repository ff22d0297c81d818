// Package grid 将二维单元格表转换为按位置编号的 Record 序列（xlsx/csv 共用）。
package grid

import (
	"fmt"
	"strings"

	"jdextract/pkg/contract"
)

// Options: 列选择与表头处理。
type Options struct {
	// Column: 正文所在列（0 起，默认 1 即 B 列）。
	Column *int `json:"column"`
	// ColumnName: 按表头名定位正文列；非空时优先于 Column（需 HeaderRow=true）。
	ColumnName string `json:"column_name"`
	// HeaderRow: 首行是否为表头（默认 true）。
	HeaderRow *bool `json:"header_row"`
	// CarryColumns: 需要原样透传到输出的其他列（按表头名）；["*"] 表示除正文外全部。
	CarryColumns []string `json:"carry_columns"`
}

// Records 将原始行转换为 Record；Position 按数据行顺序自 0 递增。
// 短行按空串补齐；正文列缺失的行 Content 为空（由 PromptBuilder 判定为空内容）。
func Records(rows [][]string, o Options) ([]contract.Record, error) {
	header := o.HeaderRow == nil || *o.HeaderRow
	col := 1
	if o.Column != nil {
		if *o.Column < 0 {
			return nil, fmt.Errorf("rowsource: %w: column %d < 0", contract.ErrConfiguration, *o.Column)
		}
		col = *o.Column
	}
	var names []string
	data := rows
	if header {
		if len(rows) > 0 {
			names = make([]string, len(rows[0]))
			for i, h := range rows[0] {
				names[i] = strings.TrimSpace(h)
			}
			data = rows[1:]
		} else {
			data = nil
		}
	}
	if o.ColumnName != "" {
		if !header {
			return nil, fmt.Errorf("rowsource: %w: column_name requires header_row", contract.ErrConfiguration)
		}
		idx := indexOf(names, o.ColumnName)
		if idx < 0 {
			return nil, fmt.Errorf("rowsource: %w: column %q not found in header", contract.ErrConfiguration, o.ColumnName)
		}
		col = idx
	}
	carry, err := carryIndexes(names, o.CarryColumns, col)
	if err != nil {
		return nil, err
	}

	out := make([]contract.Record, 0, len(data))
	for i, row := range data {
		rec := contract.Record{Position: contract.Position(i), Content: cell(row, col)}
		if len(carry) > 0 {
			rec.Columns = make([]contract.Column, 0, len(carry))
			for _, c := range carry {
				rec.Columns = append(rec.Columns, contract.Column{Name: names[c], Value: cell(row, c)})
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func carryIndexes(names, want []string, content int) ([]int, error) {
	if len(want) == 0 {
		return nil, nil
	}
	if len(want) == 1 && want[0] == "*" {
		var idx []int
		for i, n := range names {
			if i != content && n != "" {
				idx = append(idx, i)
			}
		}
		return idx, nil
	}
	idx := make([]int, 0, len(want))
	for _, w := range want {
		i := indexOf(names, w)
		if i < 0 {
			return nil, fmt.Errorf("rowsource: %w: carry column %q not found in header", contract.ErrConfiguration, w)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func indexOf(names []string, want string) int {
	want = strings.TrimSpace(want)
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
