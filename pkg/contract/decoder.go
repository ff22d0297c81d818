package contract

import "context"

// Decoder: 将 Raw 解码为结构化字段。
// 解码失败必须包装 ErrResponseInvalid，由编排层决定是否重试。
type Decoder interface {
	Decode(ctx context.Context, raw Raw) (*Fields, error)
}
