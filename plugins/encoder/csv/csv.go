package csv

import (
	"bytes"
	"context"
	stdcsv "encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

// Options 为 CSV 编码器的可选配置。
type Options struct {
	// Delimiter: 单字符分隔符，默认 ","。
	Delimiter string `json:"delimiter"`
	// NoHeader: 为 true 时不输出表头行。
	NoHeader bool `json:"no_header"`
}

type encoder struct {
	comma    rune
	noHeader bool
}

// New 创建 CSV 编码器；分隔符非法时返回 ErrInvalidInput。
func New(opts *Options) (contract.Encoder, error) {
	e := &encoder{comma: ','}
	if opts == nil {
		return e, nil
	}
	if opts.Delimiter != "" {
		r, n := utf8.DecodeRuneInString(opts.Delimiter)
		if n != len(opts.Delimiter) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
			return nil, errors.Wrapf(contract.ErrInvalidInput, "csv delimiter %q", opts.Delimiter)
		}
		e.comma = r
	}
	e.noHeader = opts.NoHeader
	return e, nil
}

var _ contract.Encoder = (*encoder)(nil)

func (e *encoder) Ext() string { return ".csv" }

// Encode 按 Columns 顺序输出；行宽不一致返回 ErrInvalidInput。
func (e *encoder) Encode(ctx context.Context, t *contract.Table) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := stdcsv.NewWriter(&buf)
	w.Comma = e.comma
	if !e.noHeader {
		if err := w.Write(t.Columns); err != nil {
			return nil, err
		}
	}
	rec := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		// 大表逐千行检查取消
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j, c := range row {
			rec[j] = contract.FormatCell(c)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &buf, nil
}
