package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"jdextract/pkg/contract"
	"jdextract/plugins/rowsource/grid"
)

// Options: 分隔符 + 列选择。
type Options struct {
	// Comma: 字段分隔符（单字符），默认 ","；"\t" 表示 TSV。
	Comma string `json:"comma"`
	grid.Options
}

// Source 读取 CSV/TSV。
type Source struct {
	opts  Options
	comma rune
}

// New 创建 csv RowSource；分隔符非法时返回错误。
func New(opts *Options) (*Source, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	comma := ','
	switch o.Comma {
	case "":
	case `\t`, "\t":
		comma = '\t'
	default:
		rs := []rune(o.Comma)
		if len(rs) != 1 || rs[0] == '"' || rs[0] == '\r' || rs[0] == '\n' {
			return nil, fmt.Errorf("csv: %w: invalid comma %q", contract.ErrConfiguration, o.Comma)
		}
		comma = rs[0]
	}
	return &Source{opts: o, comma: comma}, nil
}

// Load 读取全部记录；容忍不等长行与 UTF-8 BOM。
func (s *Source) Load(ctx context.Context, r io.Reader) ([]contract.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\xEF\xBB\xBF" {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.Comma = s.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w: %v", contract.ErrConfiguration, err)
	}
	// 去掉尾部全空行（编辑器常见的结尾空行）
	for len(rows) > 0 && strings.TrimSpace(strings.Join(rows[len(rows)-1], "")) == "" {
		rows = rows[:len(rows)-1]
	}
	return grid.Records(rows, s.opts.Options)
}

var _ contract.RowSource = (*Source)(nil)
