package contract

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Row: 可平铺为一行的记录。Header 与 Cells 长度必须一致。
type Row interface {
	Header() []string
	Cells() []any
}

// Table: 列式表的最小表示（替代 DataFrame 协作者）。
// 单元格取值限定为 float64 / uint32 / int / string，便于编码器与 SQL 写出器推断类型。
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Len 返回行数。
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// TableOf 将同构记录序列平铺为 Table。
// 空序列时列名取零值记录的 Header（泛型零值对所有内建记录类型都可安全调用）。
func TableOf[T Row](name string, rows []T) *Table {
	var zero T
	t := &Table{Name: name, Columns: zero.Header(), Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Cells())
	}
	return t
}

// AppendColumn 追加一列；vals 长度必须与行数一致，否则返回 ErrInvalidInput。
func (t *Table) AppendColumn(name string, vals []any) error {
	if len(vals) != len(t.Rows) {
		return errors.Wrapf(ErrInvalidInput, "column %s: %d values for %d rows", name, len(vals), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], vals[i])
	}
	return nil
}

// Validate 检查每行宽度与列数一致。
func (t *Table) Validate() error {
	if t == nil {
		return errors.Wrap(ErrInvalidInput, "nil table")
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return errors.Wrapf(ErrInvalidInput, "table %s row %d: %d cells for %d columns", t.Name, i, len(r), len(t.Columns))
		}
	}
	return nil
}

// FormatCell 将单元格格式化为文本：浮点取最短可往返表示。
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
