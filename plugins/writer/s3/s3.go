package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"jdextract/internal/objstore"
	"jdextract/pkg/contract"
)

// Options 复用对象存储连接选项。
type Options struct {
	objstore.Options
	// ContentType 为空时按扩展名推断。
	ContentType string `json:"content_type,omitempty"`
}

type putAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Writer 将结果上传到 S3 兼容存储。
type Writer struct {
	opts Options
	api  putAPI
}

// New 创建 Writer。
func New(ctx context.Context, opts *Options) (*Writer, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	c, err := objstore.NewClient(ctx, o.Options)
	if err != nil {
		return nil, err
	}
	return &Writer{opts: o, api: c}, nil
}

var _ contract.Writer = (*Writer)(nil)

// Write 读完 r 后一次性 PutObject。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	bucket, key, err := objstore.Locate(w.opts.Options, string(id))
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	ct := w.opts.ContentType
	if ct == "" {
		ct = objstore.ContentType(key)
	}
	_, err = w.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ct),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
