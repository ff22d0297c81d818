package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"jdextract/pkg/contract"
)

// Options 本地输入选项。
type Options struct {
	// BufSize 读缓冲大小，默认 64KiB。
	BufSize int `json:"buf_size,omitempty"`
	// MaxBytes 输入文件大小上限，<=0 不限制。STDIN 不检查。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// FileSystem 从本地文件或 STDIN（"-"）读取输入表格。
type FileSystem struct {
	bufSize  int
	maxBytes int64
	stdin    io.ReadCloser
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, stdin: os.Stdin}
	if opts != nil {
		if opts.BufSize > 0 {
			r.bufSize = opts.BufSize
		}
		r.maxBytes = opts.MaxBytes
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开 src。src 为 "-" 时读取 STDIN；符号链接只跟随到常规文件。
func (r *FileSystem) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: input path is empty", contract.ErrConfiguration)
	}
	if src == "-" {
		return newBufferedCloser(io.NopCloser(r.stdin), r.bufSize), nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("%w: input %s: %w", contract.ErrConfiguration, src, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: input %s is not a regular file", contract.ErrConfiguration, src)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return nil, fmt.Errorf("%w: input %s is %d bytes, limit %d", contract.ErrConfiguration, src, info.Size(), r.maxBytes)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", contract.ErrConfiguration, src, err)
	}
	return newBufferedCloser(f, r.bufSize), nil
}

// bufferedCloser 组合 bufio.Reader 与底层 Closer。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
