// Package sqlite 将表直接写入 SQLite 数据库：每个工件一张表。
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"aptconv/pkg/contract"
)

// Options: SQLite 写出端配置。
type Options struct {
	// Path: 数据库文件路径（必需）；":memory:" 用于测试。
	Path string `json:"path"`
	// Append: 为 true 时保留同名表并追加行；默认先 DROP 再重建。
	Append bool `json:"append,omitempty"`
}

// Sink 实现 contract.TableWriter。
type Sink struct {
	db     *sql.DB
	owned  bool
	append bool
}

var _ contract.TableWriter = (*Sink)(nil)

// Open 打开（或创建）数据库文件。
func Open(opts *Options) (*Sink, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, errors.Wrap(contract.ErrInvalidInput, "sqlite: path is required")
	}
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: open %s", opts.Path)
	}
	// 单连接：写出串行进行，且 :memory: 库按连接隔离
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	s := NewWithDB(db, opts)
	s.owned = true
	return s, nil
}

// NewWithDB 复用外部连接；Close 不会关闭该连接。
func NewWithDB(db *sql.DB, opts *Options) *Sink {
	s := &Sink{db: db}
	if opts != nil {
		s.append = opts.Append
	}
	return s
}

// Close 关闭由 Open 创建的连接。
func (s *Sink) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// WriteTable 在单个事务内建表并以预编译语句逐行插入。
func (s *Sink) WriteTable(ctx context.Context, id contract.ArtifactID, t *contract.Table) (err error) {
	if err := t.Validate(); err != nil {
		return err
	}
	name := TableName(id)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "sqlite: begin %s", name)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if !s.append {
		if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
			return errors.Wrapf(err, "sqlite: drop %s", name)
		}
	}
	if _, err = tx.ExecContext(ctx, createStmt(name, t)); err != nil {
		return errors.Wrapf(err, "sqlite: create %s", name)
	}
	stmt, err := tx.PrepareContext(ctx, insertStmt(name, t))
	if err != nil {
		return errors.Wrapf(err, "sqlite: prepare %s", name)
	}
	defer stmt.Close()
	for i, row := range t.Rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return errors.Wrapf(err, "sqlite: insert %s row %d", name, i)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "sqlite: commit %s", name)
	}
	return nil
}

// TableName 将工件 ID 映射为表名：取基名，非 [A-Za-z0-9_] 替换为 '_'，数字开头加前缀 't_'。
func TableName(id contract.ArtifactID) string {
	base := id.Base()
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

// ColumnTypes 按每列首个非空单元格推断 SQLite 类型；无样本时为 TEXT。
func ColumnTypes(t *contract.Table) []string {
	types := make([]string, len(t.Columns))
	for j := range t.Columns {
		types[j] = "TEXT"
		for _, row := range t.Rows {
			if row[j] == nil {
				continue
			}
			types[j] = sqlType(row[j])
			break
		}
	}
	return types
}

func sqlType(v any) string {
	switch v.(type) {
	case float64, float32:
		return "REAL"
	case int, int64, int32, uint32, uint16, uint8, bool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func createStmt(name string, t *contract.Table) string {
	types := ColumnTypes(t)
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c) + " " + types[i]
	}
	return "CREATE TABLE IF NOT EXISTS " + quote(name) + " (" + strings.Join(cols, ", ") + ")"
}

func insertStmt(name string, t *contract.Table) string {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c)
		marks[i] = "?"
	}
	return "INSERT INTO " + quote(name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
