package contract

import (
	"context"
	"io"
)

// Assembler: 将已展平的结果表编码为目标格式字节流（xlsx/csv）。
// 约束：
//  1. 行顺序即 Sheet.Rows 顺序，不重排；
//  2. nil 单元格输出为空；
//  3. 不引入跨运行状态。
type Assembler interface {
	Assemble(ctx context.Context, sheet Sheet) (io.Reader, error)
}
