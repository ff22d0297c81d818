package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"jdextract/pkg/contract"
	"jdextract/plugins/rowsource/grid"
)

// Options: 工作表选择 + 列选择。
type Options struct {
	// Sheet: 工作表名；空表示第一个工作表。
	Sheet string `json:"sheet"`
	grid.Options
}

// Source 基于 excelize 读取 .xlsx 工作簿。
type Source struct {
	opts Options
}

// New 创建 xlsx RowSource。
func New(opts *Options) *Source {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	return &Source{opts: o}
}

// Load 读取整张工作表为 Record 序列。
func (s *Source) Load(ctx context.Context, r io.Reader) ([]contract.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w: open workbook: %v", contract.ErrConfiguration, err)
	}
	defer f.Close()

	sheet := s.opts.Sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("xlsx: %w: workbook has no sheets", contract.ErrConfiguration)
		}
		sheet = list[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w: read sheet %q: %v", contract.ErrConfiguration, sheet, err)
	}
	return grid.Records(rows, s.opts.Options)
}

var _ contract.RowSource = (*Source)(nil)
