package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Terminal: 终端状态提示（非日志），以 pterm 着色按关键节点分行输出。
// 并发安全；写失败后进入禁用态。
type Terminal struct {
	w       io.Writer
	enabled bool

	filesDone  int
	filesFail  int
	rows       int
	curFileID  string
	runStarted time.Time

	mu sync.Mutex
}

// 进程级终端（可选），pipeline 旁路调用。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端（nil 清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal: w 为 nil 时写 stderr；非 TTY 或 CI 环境下不着色。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	if !isTTY(w) {
		pterm.DisableColor()
	}
	return &Terminal{w: w, enabled: enabled}
}

func isTTY(w io.Writer) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// RunStart: 输入 root 数量与输出端名称。
func (t *Terminal) RunStart(roots int, sink string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filesDone, t.filesFail, t.rows = 0, 0, 0
	t.runStarted = time.Now()
	t.println(fmt.Sprintf("%s inputs=%d | sink=%s", pterm.Cyan("[run]"), roots, safe(sink)))
}

// FileStart 标记当前文件。
func (t *Terminal) FileStart(fileID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.curFileID = shortenBase(fileID, 48)
	t.println(fmt.Sprintf("%s %s", pterm.Gray("[file]"), t.curFileID))
}

// FileWarn 输出当前文件的告警（如截断）。
func (t *Terminal) FileWarn(msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(fmt.Sprintf("%s %s | %s", pterm.Yellow("[warn]"), t.curFileID, safe(msg)))
}

// FileFinish 完成当前文件；rows 为写出的总行数。
func (t *Terminal) FileFinish(ok bool, rows int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tag := pterm.Green("[done]")
	if ok {
		t.filesDone++
		t.rows += rows
	} else {
		t.filesFail++
		tag = pterm.Red("[fail]")
	}
	t.println(fmt.Sprintf("%s %s | rows %d | %s", tag, t.curFileID, rows, formatDur(dur)))
}

// RunFinish 输出总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tag := pterm.LightGreen("[ok]")
	if !ok {
		tag = pterm.LightRed("[fail]")
	}
	t.println(fmt.Sprintf("%s files %d | failed %d | rows %d | %s", tag, t.filesDone, t.filesFail, t.rows, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
}

// shortenBase: 取基名并按 rune 截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	return string(rs[:cut]) + "…"
}

// safe 去掉换行，避免污染终端。
func safe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
