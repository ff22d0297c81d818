package contract

import (
	"context"
	"io"
)

// Reader: 字节源抽象（本地文件/STDIN/对象存储）。
// 约束：
// 1) 只提供字节流，不做解析；
// 2) 源不存在时返回可被 errors.Is(err, fs.ErrNotExist) 识别的错误或包装 ErrConfiguration；
// 3) 不在内部起并发。
type Reader interface {
	Open(ctx context.Context, src string) (io.ReadCloser, error)
}
