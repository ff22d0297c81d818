package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"jdextract/pkg/contract"
)

// Options 本地文件输出选项。
type Options struct {
	// BaseDir 可选根目录。为空时 id 即目标路径（允许绝对路径）；
	// 非空时 id 必须是不越界的相对路径。
	BaseDir string `json:"base_dir,omitempty"`
	// Atomic 同目录临时文件加 rename。默认 true。
	Atomic *bool `json:"atomic,omitempty"`
	// KeepExisting 目标已存在时先改名为 <name>.bak 再写入。
	KeepExisting bool `json:"keep_existing,omitempty"`
	// PermFile/PermDir 为 0 时取 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize <=0 时取 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

func (o *Options) defaults() {
	if o.PermFile == 0 {
		o.PermFile = 0o644
	}
	if o.PermDir == 0 {
		o.PermDir = 0o755
	}
	if o.BufSize <= 0 {
		o.BufSize = 64 * 1024
	}
	if o.Atomic == nil {
		v := true
		o.Atomic = &v
	}
}

// FS 将结果工作簿写到本地磁盘。
type FS struct {
	root    string
	atomic  bool
	backup  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer。opts 可为 nil。
func New(opts *Options) (*FS, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.defaults()
	root := strings.TrimSpace(o.BaseDir)
	if root != "" {
		if fi, err := os.Stat(root); err == nil && !fi.IsDir() {
			return nil, fmt.Errorf("%w: base_dir %q is not a directory", contract.ErrConfiguration, root)
		}
	}
	return &FS{
		root:    root,
		atomic:  *o.Atomic,
		backup:  o.KeepExisting,
		permF:   o.PermFile,
		permD:   o.PermDir,
		bufSize: o.BufSize,
	}, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 把 r 的全部字节写到 id 对应的路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.backup {
		if err := backupExisting(dest); err != nil {
			return err
		}
	}

	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// Target 返回 id 映射后的目标路径，供日志与终端展示。
func (w *FS) Target(id contract.ArtifactID) (string, error) { return w.mapPath(id) }

func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	raw := strings.TrimSpace(string(id))
	if raw == "" {
		return "", contract.ErrPathInvalid
	}
	rel := filepath.FromSlash(string(contract.NormalizeArtifactID(raw)))
	if rel == "." || rel == ".." || strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if w.root == "" {
		return rel, nil
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", contract.ErrPathInvalid
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func backupExisting(dest string) error {
	fi, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return contract.ErrPathInvalid
	}
	return osReplace(dest, dest+".bak")
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".jdx-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// readerWithCtx 每次 Read 前检查 ctx。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
