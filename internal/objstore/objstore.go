// Package objstore 构造 S3 兼容对象存储客户端，并解析 s3:// 地址。
package objstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"jdextract/pkg/contract"
)

// Options 读写插件共用的连接选项。
type Options struct {
	Region string `json:"region,omitempty"`
	// Endpoint 自定义端点（MinIO 等）；设置后默认使用 path-style。
	Endpoint string `json:"endpoint,omitempty"`
	// Bucket 默认桶；src/id 为 s3://bucket/key 时以地址为准。
	Bucket string `json:"bucket,omitempty"`
	// Prefix 对象键前缀，仅作用于相对键。
	Prefix    string `json:"prefix,omitempty"`
	PathStyle *bool  `json:"path_style,omitempty"`
}

// NewClient 按默认凭证链加载配置并创建客户端。
func NewClient(ctx context.Context, o Options) (*s3.Client, error) {
	var lo []func(*config.LoadOptions) error
	if o.Region != "" {
		lo = append(lo, config.WithRegion(o.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, lo...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", contract.ErrConfiguration, err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	pathStyle := o.Endpoint != ""
	if o.PathStyle != nil {
		pathStyle = *o.PathStyle
	}
	var so []func(*s3.Options)
	if o.Endpoint != "" || pathStyle {
		endpoint := o.Endpoint
		so = append(so, func(opt *s3.Options) {
			if endpoint != "" {
				opt.BaseEndpoint = aws.String(endpoint)
			}
			opt.UsePathStyle = pathStyle
		})
	}
	return s3.NewFromConfig(awsCfg, so...), nil
}

// Locate 把 s3://bucket/key 或相对键解析为 (bucket, key)。
func Locate(o Options, ref string) (bucket, key string, err error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		key = strings.TrimLeft(key, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("%w: malformed s3 uri %q", contract.ErrPathInvalid, ref)
		}
		return bucket, key, nil
	}
	if o.Bucket == "" {
		return "", "", fmt.Errorf("%w: bucket is required for key %q", contract.ErrConfiguration, ref)
	}
	key = strings.TrimLeft(strings.ReplaceAll(ref, "\\", "/"), "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: empty object key", contract.ErrPathInvalid)
	}
	if o.Prefix != "" {
		key = path.Join(strings.Trim(o.Prefix, "/"), key)
	}
	if key == "." || strings.HasPrefix(key, "../") || key == ".." {
		return "", "", fmt.Errorf("%w: object key %q escapes prefix", contract.ErrPathInvalid, ref)
	}
	return o.Bucket, key, nil
}

// ContentType 按扩展名给出上传时的 Content-Type。
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".tsv":
		return "text/tab-separated-values; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
