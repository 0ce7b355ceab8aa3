package diag

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// 进程内计数器（无导出端点）：
//   - op_total{comp,stage,result}
//   - error_total{comp,code}
//   - op_duration_ms{comp,stage}（累加）
var metrics = struct {
	mu sync.Mutex
	m  map[string]int64
}{m: map[string]int64{}}

func add(key string, v int64) {
	metrics.mu.Lock()
	metrics.m[key] += v
	metrics.mu.Unlock()
}

func key(name string, labels ...string) string {
	return name + "{" + strings.Join(labels, ",") + "}"
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add(key("op_total", comp, stage, result), 1) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add(key("error_total", comp, code), 1) }

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add(key("op_duration_ms", comp, stage), durMS)
}

// Snapshot 返回计数器副本。
func Snapshot() map[string]int64 {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	out := make(map[string]int64, len(metrics.m))
	for k, v := range metrics.m {
		out[k] = v
	}
	return out
}

// SnapshotKeys 返回排序后的计数器名，便于稳定输出。
func SnapshotKeys(s map[string]int64) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SnapshotKV 返回字符串化的计数器快照，供日志 kv 字段使用。
func SnapshotKV() map[string]string {
	s := Snapshot()
	out := make(map[string]string, len(s))
	for _, k := range SnapshotKeys(s) {
		out[k] = strconv.FormatInt(s[k], 10)
	}
	return out
}

// ResetMetrics 清空计数器。
func ResetMetrics() {
	metrics.mu.Lock()
	metrics.m = map[string]int64{}
	metrics.mu.Unlock()
}
