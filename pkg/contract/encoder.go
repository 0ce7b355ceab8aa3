package contract

import (
	"context"
	"io"
)

// Encoder: 将 Table 编码为字节流（CSV/JSONL 等）。
// 约束：纯计算，不做 I/O；列顺序与 Table.Columns 一致。
type Encoder interface {
	// Ext 返回产物扩展名（含点，如 ".csv"）。
	Ext() string
	Encode(ctx context.Context, t *Table) (io.Reader, error)
}
