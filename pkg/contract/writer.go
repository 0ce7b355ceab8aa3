package contract

import (
	"context"
	"io"
)

// ArtifactID: 与 FileID 等价的持久化工件标识（语义别名）。
type ArtifactID = FileID

// Writer: 将编码结果以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// TableWriter: 直接接收表的持久化端（如 SQLite），不经过 Encoder。
type TableWriter interface {
	WriteTable(ctx context.Context, id ArtifactID, t *Table) error
}

// Encoded 将 Encoder 与 Writer 组合为 TableWriter；产物 ID 追加编码器扩展名。
func Encoded(enc Encoder, w Writer) TableWriter {
	return encodedWriter{enc: enc, w: w}
}

type encodedWriter struct {
	enc Encoder
	w   Writer
}

func (e encodedWriter) WriteTable(ctx context.Context, id ArtifactID, t *Table) error {
	r, err := e.enc.Encode(ctx, t)
	if err != nil {
		return err
	}
	return e.w.Write(ctx, ArtifactID(string(id)+e.enc.Ext()), r)
}
