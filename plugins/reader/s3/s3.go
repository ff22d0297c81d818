package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"jdextract/internal/objstore"
	"jdextract/pkg/contract"
)

// Options 复用对象存储连接选项。
type Options struct {
	objstore.Options
	// MaxBytes 对象大小上限，<=0 不限制。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

type getAPI interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Reader 从 S3 兼容存储下载输入表格。
type Reader struct {
	opts Options
	api  getAPI
}

// New 创建 Reader。
func New(ctx context.Context, opts *Options) (*Reader, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	c, err := objstore.NewClient(ctx, o.Options)
	if err != nil {
		return nil, err
	}
	return &Reader{opts: o, api: c}, nil
}

var _ contract.Reader = (*Reader)(nil)

// Open 打开 s3://bucket/key 或相对于 bucket/prefix 的键。
func (r *Reader) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	bucket, key, err := objstore.Locate(r.opts.Options, src)
	if err != nil {
		return nil, err
	}
	out, err := r.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s: %w", contract.ErrConfiguration, bucket, key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", contract.ErrConfiguration, bucket, key, err)
	}
	if r.opts.MaxBytes > 0 && out.ContentLength != nil && *out.ContentLength > r.opts.MaxBytes {
		_ = out.Body.Close()
		return nil, fmt.Errorf("%w: s3://%s/%s is %d bytes, limit %d", contract.ErrConfiguration, bucket, key, *out.ContentLength, r.opts.MaxBytes)
	}
	return out.Body, nil
}
