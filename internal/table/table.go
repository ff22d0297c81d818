// Package table 将按位置排列的 Outcome 展平为结果表。
package table

import (
	"encoding/json"
	"fmt"
	"sort"

	"jdextract/pkg/contract"
)

// 错误结果使用的保留列。
const (
	ColError     = "error"
	ColErrorKind = "error_kind"
	ColRaw       = "raw_response"
)

// DefaultContentHeader 正文列的输出表头。
const DefaultContentHeader = "文书内容"

// Build 按 Position 升序对齐 recs 与 outs，生成结果表。
// 列顺序：正文列，透传列，然后按位置升序首次出现的结果键。
// 嵌套对象以 "." 连接键名；数组序列化为 JSON 文本。
func Build(recs []contract.Record, outs []contract.Outcome, contentHeader string) (contract.Sheet, error) {
	if contentHeader == "" {
		contentHeader = DefaultContentHeader
	}
	if len(recs) != len(outs) {
		return contract.Sheet{}, fmt.Errorf("%w: %d records vs %d outcomes", contract.ErrInvariantViolation, len(recs), len(outs))
	}
	byPos := make(map[contract.Position]int, len(recs))
	for i, r := range recs {
		if _, dup := byPos[r.Position]; dup {
			return contract.Sheet{}, fmt.Errorf("%w: duplicate record position %d", contract.ErrInvariantViolation, r.Position)
		}
		byPos[r.Position] = i
	}
	sorted := make([]contract.Outcome, len(outs))
	copy(sorted, outs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	carry := newColumns()
	fields := newColumns()
	flat := make([]map[string]any, len(sorted))
	for i, o := range sorted {
		if !o.Valid() {
			return contract.Sheet{}, fmt.Errorf("%w: outcome %d has invalid shape", contract.ErrInvariantViolation, o.Position)
		}
		if i > 0 && sorted[i-1].Position == o.Position {
			return contract.Sheet{}, fmt.Errorf("%w: duplicate outcome position %d", contract.ErrInvariantViolation, o.Position)
		}
		ri, ok := byPos[o.Position]
		if !ok {
			return contract.Sheet{}, fmt.Errorf("%w: outcome %d has no record", contract.ErrInvariantViolation, o.Position)
		}
		for _, c := range recs[ri].Columns {
			carry.add(c.Name)
		}
		m := map[string]any{}
		if o.Err != nil {
			m[ColError] = o.Err.Message
			m[ColErrorKind] = string(o.Err.Kind)
			fields.add(ColError)
			fields.add(ColErrorKind)
			if o.Err.Raw != "" {
				m[ColRaw] = o.Err.Raw
				fields.add(ColRaw)
			}
		} else {
			flatten("", o.Fields, m, fields)
		}
		flat[i] = m
	}

	header := make([]string, 0, 1+len(carry.names)+len(fields.names))
	header = append(header, contentHeader)
	header = append(header, carry.names...)
	header = append(header, fields.names...)

	rows := make([][]any, len(sorted))
	for i, o := range sorted {
		rec := recs[byPos[o.Position]]
		row := make([]any, len(header))
		row[0] = rec.Content
		for _, c := range rec.Columns {
			row[1+carry.index[c.Name]] = c.Value
		}
		base := 1 + len(carry.names)
		for k, v := range flat[i] {
			row[base+fields.index[k]] = v
		}
		rows[i] = row
	}
	return contract.Sheet{Header: header, Rows: rows}, nil
}

type columns struct {
	names []string
	index map[string]int
}

func newColumns() *columns { return &columns{index: map[string]int{}} }

func (c *columns) add(name string) {
	if _, ok := c.index[name]; ok {
		return
	}
	c.index[name] = len(c.names)
	c.names = append(c.names, name)
}

func flatten(prefix string, f *contract.Fields, out map[string]any, cols *columns) {
	for _, k := range f.Keys() {
		v, _ := f.Get(k)
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(*contract.Fields); ok && sub.Len() > 0 {
			flatten(key, sub, out, cols)
			continue
		}
		cols.add(key)
		out[key] = Cell(v)
	}
}

// Cell 将解码值转换为单元格值：数字转 int64/float64，数组与对象转 JSON 文本。
func Cell(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case *contract.Fields:
		if x.Len() == 0 {
			return nil
		}
		b, _ := json.Marshal(x)
		return string(b)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
