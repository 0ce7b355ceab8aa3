// Package filesystem 将编码后的工件写入输出目录。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

// Options: 文件系统写出端配置。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + rename；nil 时默认 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 仅保留工件基名，不复刻输入目录层级；nil 时默认 true。
	Flat *bool `json:"flat,omitempty"`
	// NoClobber: 目标已存在时报错而不是替换。
	NoClobber bool `json:"no_clobber,omitempty"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲大小；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 实现 contract.Writer。
type FS struct {
	root      string
	atomic    bool
	flat      bool
	noClobber bool
	permF     os.FileMode
	permD     os.FileMode
	bufSize   int
}

// New 创建文件系统写出端；OutputDir 为空返回 ErrInvalidInput。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.Wrap(contract.ErrInvalidInput, "writer: output_dir is required")
	}
	w := &FS{
		root:      opts.OutputDir,
		atomic:    true,
		flat:      true,
		noClobber: opts.NoClobber,
		permF:     0o644,
		permD:     0o755,
		bufSize:   64 * 1024,
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.Flat != nil {
		w.flat = *opts.Flat
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if w.noClobber {
		if _, err := os.Lstat(dest); err == nil {
			return errors.Wrapf(os.ErrExist, "writer: %s", dest)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return errors.Wrapf(err, "writer: mkdir for %s", dest)
	}
	if w.atomic {
		err = w.writeAtomic(ctx, dest, r)
	} else {
		err = w.writeOverwrite(ctx, dest, r)
	}
	return errors.Wrapf(err, "writer: %s", dest)
}

// mapPath: Clean + Join；非扁平模式拒绝绝对路径、父级逃逸与卷名。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", errors.Wrapf(contract.ErrPathInvalid, "artifact %q", id)
		}
		return filepath.Join(w.root, rel), nil
	}
	switch {
	case rel == "." || rel == "..",
		filepath.IsAbs(rel),
		strings.HasPrefix(rel, ".."+string(filepath.Separator)),
		filepath.VolumeName(rel) != "":
		return "", errors.Wrapf(contract.ErrPathInvalid, "artifact %q", id)
	}
	return filepath.Join(w.root, rel), nil
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
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	closed := false
	// 任一步失败都移除临时文件
	defer func() {
		if err != nil {
			if !closed {
				_ = tmp.Close()
			}
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err = io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = osReplace(tmpPath, dest); err != nil {
		return err
	}
	// 父目录 fsync 为尽力而为
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 每次 Read 前检查 ctx。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
