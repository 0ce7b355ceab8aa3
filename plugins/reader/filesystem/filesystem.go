// Package filesystem 提供基于文件、目录与 STDIN 的 Reader。
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

// Options 为文件系统 Reader 的可选配置。
type Options struct {
	// BufSize: 读缓冲大小，默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 目录递归时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Exts: 目录递归时只产出这些扩展名（含点，大小写不敏感）；为空不过滤。
	// 显式给出的文件 root 不受影响。
	Exts []string `json:"exts"`
	// StdinName: STDIN 的 FileID，默认 "stdin.pos"；解码器按其扩展名选择，EPOS 输入设为 "stdin.epos"。
	StdinName string `json:"stdin_name"`
}

// FileSystem 实现 contract.Reader。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	exts       map[string]struct{}
	stdinName  string
}

// New 创建文件系统 Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{
		bufSize:    64 * 1024,
		excludeDir: map[string]struct{}{},
		stdinName:  "stdin.pos",
	}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	if len(opts.Exts) > 0 {
		r.exts = make(map[string]struct{}, len(opts.Exts))
		for _, e := range opts.Exts {
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			r.exts[strings.ToLower(e)] = struct{}{}
		}
	}
	if opts.StdinName != "" {
		r.stdinName = opts.StdinName
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 遍历 roots，按稳定顺序对每个常规文件调用 yield。
// roots 为空或仅为 "-" 时读取 STDIN；"-" 不可与其它 root 混用。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.NormalizeFileID(r.stdinName), newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return errors.Wrap(contract.ErrInvalidInput, "stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return errors.Wrapf(err, "reader: %s", root)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		// 仅跟随指向常规文件的链接；目录链接忽略
		t, err := os.Stat(root)
		if err != nil {
			return errors.Wrapf(err, "reader: %s", root)
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.emit(root, yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.emit(root, yield)
}

// walkDir: 先子目录后文件，各自按名称字典序（os.ReadDir 已排序）。
func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reader: %s", dir)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !r.allowed(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return errors.Wrapf(err, "reader: %s", p)
			}
			mode = t.Mode()
		}
		if !mode.IsRegular() {
			continue
		}
		if err := r.emit(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) allowed(name string) bool {
	if r.exts == nil {
		return true
	}
	_, ok := r.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// emit 打开文件并交给 yield；yield 出错时代为关闭。
func (r *FileSystem) emit(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return errors.Wrapf(err, "reader: %s", p)
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
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
