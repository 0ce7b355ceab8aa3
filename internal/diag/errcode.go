package diag

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

// Code 是最小错误分类代码，用于日志、指标与退出码。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeFormat    Code = "format"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归类；只依赖哨兵与错误类型，不做字符串匹配。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.IsAny(err,
		contract.ErrMalformedInput,
		contract.ErrMalformedRange,
		contract.ErrMalformedComposition,
		contract.ErrDuplicateKey):
		return CodeFormat
	case errors.IsAny(err,
		contract.ErrInvariantViolation,
		contract.ErrInvalidInput,
		contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) || errors.Is(err, os.ErrExist) || errors.Is(err, os.ErrNotExist) {
		return CodeIO
	}
	return CodeUnknown
}

// ExitCode 将错误映射为进程退出码；nil 为 0。
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Classify(err) {
	case CodeInvariant:
		return 2
	case CodeFormat:
		return 3
	case CodeIO:
		return 4
	case CodeCancel:
		return 130
	default:
		return 1
	}
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
