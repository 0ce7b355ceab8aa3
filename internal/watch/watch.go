// Package watch 监听输入文件变化并触发重新转换。
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"aptconv/internal/diag"
	"aptconv/pkg/contract"
)

// DefaultPeriod: 去抖窗口；窗口内的多次写入合并为一次回调。
const DefaultPeriod = 500 * time.Millisecond

// Options 控制监听范围。
type Options struct {
	// Period: 去抖窗口，<=0 时取 DefaultPeriod。
	Period time.Duration
	// Exts: 关注的扩展名（小写含点）；为空时取 .pos/.epos/.rrng。
	Exts []string
	// RangesPath: 范围文件；其变化触发全量重跑。
	RangesPath string
}

// Batch 为一次去抖后的变化集合。
type Batch struct {
	// Paths: 变化的输入文件（排序、去重）。
	Paths []string
	// Full: 范围文件发生变化，需要对全部输入重跑。
	Full bool
}

// Handler 处理一个 Batch；返回的错误只记录日志，不终止监听。
type Handler func(ctx context.Context, b Batch) error

// Watcher 基于 fsnotify 监听目录。
// 单文件 root 通过监听其父目录并按文件名过滤实现（编辑器的原子替换会使文件级监听失效）。
type Watcher struct {
	fw     *fsnotify.Watcher
	period time.Duration
	exts   map[string]struct{}
	files  map[string]struct{} // 显式文件 root（绝对路径）
	dirs   []string            // 目录 root（绝对路径）
	ranges string
	logger *diag.Logger
}

// New 为 roots（文件或目录）建立监听；目录递归添加。
func New(roots []string, opts Options, logger *diag.Logger) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, errors.Wrap(contract.ErrInvalidInput, "watch: no roots")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watch: create fsnotify watcher")
	}
	w := &Watcher{
		fw:     fw,
		period: opts.Period,
		exts:   map[string]struct{}{},
		files:  map[string]struct{}{},
		logger: logger,
	}
	if w.period <= 0 {
		w.period = DefaultPeriod
	}
	exts := opts.Exts
	if len(exts) == 0 {
		exts = []string{".pos", ".epos", ".rrng"}
	}
	for _, e := range exts {
		w.exts[strings.ToLower(e)] = struct{}{}
	}

	watched := map[string]struct{}{}
	add := func(dir string) error {
		if _, ok := watched[dir]; ok {
			return nil
		}
		if err := fw.Add(dir); err != nil {
			return errors.Wrapf(err, "watch: add %s", dir)
		}
		watched[dir] = struct{}{}
		return nil
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fw.Close()
			return nil, errors.Wrapf(err, "watch: resolve %s", root)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			_ = fw.Close()
			return nil, errors.Wrapf(err, "watch: stat %s", root)
		}
		if !fi.IsDir() {
			w.files[abs] = struct{}{}
			if err := add(filepath.Dir(abs)); err != nil {
				_ = fw.Close()
				return nil, err
			}
			continue
		}
		w.dirs = append(w.dirs, abs)
		err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return add(p)
			}
			return nil
		})
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	if opts.RangesPath != "" {
		abs, err := filepath.Abs(opts.RangesPath)
		if err != nil {
			_ = fw.Close()
			return nil, errors.Wrapf(err, "watch: resolve %s", opts.RangesPath)
		}
		w.ranges = abs
		if err := add(filepath.Dir(abs)); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close 释放 fsnotify 资源。
func (w *Watcher) Close() error { return w.fw.Close() }

// Run 阻塞直到 ctx 结束；h 在本 goroutine 中串行调用。
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	pending := map[string]struct{}{}
	full := false
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p := filepath.Clean(ev.Name)
			if ev.Op&fsnotify.Create != 0 {
				w.addCreatedDir(p)
			}
			switch {
			case p == w.ranges:
				full = true
			case w.relevant(p):
				pending[p] = struct{}{}
			default:
				continue
			}
			w.logger.DebugStart("watch", "change detected", p, map[string]string{"op": ev.Op.String()})
			if timer == nil {
				timer = time.NewTimer(w.period)
			} else {
				timer.Reset(w.period)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch", "watcher error", "", map[string]string{"err": err.Error()})
		case <-fire:
			fire = nil
			b := Batch{Paths: sortedSet(pending), Full: full}
			pending, full = map[string]struct{}{}, false
			t0 := time.Now()
			if err := h(ctx, b); err != nil {
				w.logger.ErrorWithKV("watch", string(diag.Classify(err)), "reconvert failed", &t0, "", map[string]string{"err": err.Error()})
				continue
			}
			w.logger.InfoFinish("watch", "reconverted", t0, int64(len(b.Paths)))
		}
	}
}

// relevant: 文件在某个 root 之下（或即为文件 root）且扩展名受关注。
func (w *Watcher) relevant(p string) bool {
	if _, ok := w.files[p]; ok {
		return true
	}
	if _, ok := w.exts[strings.ToLower(filepath.Ext(p))]; !ok {
		return false
	}
	for _, d := range w.dirs {
		if rel, err := filepath.Rel(d, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addCreatedDir 将目录 root 下新建的子目录加入监听。
func (w *Watcher) addCreatedDir(p string) {
	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		return
	}
	for _, d := range w.dirs {
		if strings.HasPrefix(p, d+string(filepath.Separator)) {
			if err := w.fw.Add(p); err != nil {
				w.logger.Warn("watch", "add directory failed", p, map[string]string{"err": err.Error()})
			}
			return
		}
	}
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
