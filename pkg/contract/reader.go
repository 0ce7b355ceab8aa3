package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：
// 1) 按文件维度回调，yield 负责关闭 r；yield 返回错误时 Reader 亦会尝试关闭；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
