package contract

import (
	"context"
	"io"
)

// Kind: 解码结果的数据种类。
type Kind string

const (
	KindPOS  Kind = "pos"
	KindEPOS Kind = "epos"
	KindRRNG Kind = "rrng"
)

// Dataset: 单个输入文件的解码结果；仅与 Kind 对应的字段有值。
type Dataset struct {
	Kind      Kind
	Positions []PositionRecord
	Extended  []ExtendedPositionRecord
	Ranges    *RangeSet
	// Dropped: 非严格模式下被丢弃的尾部字节数（不足一条记录）。
	Dropped int
	// Extra: 可选派生列（按行对齐），由解码器选项开启。
	Extra map[string][]any
}

// Len 返回记录数（范围文件返回范围条数）。
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	switch d.Kind {
	case KindPOS:
		return len(d.Positions)
	case KindEPOS:
		return len(d.Extended)
	case KindRRNG:
		if d.Ranges == nil {
			return 0
		}
		return len(d.Ranges.Ranges)
	}
	return 0
}

// Decoder: 将单文件字节流整体解码为 Dataset。
// 约束：
//  1. 整文件读取，不做流式增量解析；
//  2. 纯函数语义：同样的字节得到同样的结果；
//  3. 不关闭 r（由 Reader 的调用方负责）；
//  4. 格式错误以哨兵错误包装返回。
type Decoder interface {
	Kind() Kind
	Decode(ctx context.Context, fileID FileID, r io.Reader) (*Dataset, error)
}
