package contract

import (
	"context"
	"io"
)

// RowSource: 将表格字节流解析为有序 Record 序列，并分配 Position（0..n-1）。
// 约束：
// 1) 不丢行：每个数据行产出一条 Record（内容可为空）；
// 2) Position 严格递增且稳定；
// 3) 不改写文书文本。
type RowSource interface {
	Load(ctx context.Context, r io.Reader) ([]Record, error)
}
