// Package jsonl 将 Table 编码为 JSON Lines：每行一个对象，键顺序与列顺序一致。
package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"

	"aptconv/pkg/contract"
)

// Options: 预留占位，当前无配置。
type Options struct{}

type encoder struct{}

// New 创建 JSON Lines 编码器。
func New(*Options) contract.Encoder { return &encoder{} }

var _ contract.Encoder = (*encoder)(nil)

func (e *encoder) Ext() string { return ".jsonl" }

func (e *encoder) Encode(ctx context.Context, t *contract.Table) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	var buf bytes.Buffer
	for i, row := range t.Rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('{')
		for j, c := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.Write(keys[j])
			buf.WriteByte(':')
			v, err := json.Marshal(cell(c))
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteString("}\n")
	}
	return &buf, nil
}

// cell: JSON 不支持 NaN/Inf，写为 null。
func cell(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	}
	return v
}
