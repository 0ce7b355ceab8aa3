package contract

import "github.com/cockroachdb/errors"

// 格式校验类哨兵错误。检测点立即失败，不重试、不聚合。
var (
	// ErrMalformedInput: 二进制长度不是基本单元（4 字节，严格模式下为整条记录）的整数倍。
	ErrMalformedInput = errors.New("malformed input")
	// ErrMalformedRange: 范围行结构匹配但数值字段无法解析。
	ErrMalformedRange = errors.New("malformed range")
	// ErrMalformedComposition: 成分 token 不满足 Element:Count。
	ErrMalformedComposition = errors.New("malformed composition")
	// ErrDuplicateKey: 同一张表中出现重复的 number。
	ErrDuplicateKey = errors.New("duplicate key")
)

// 通用分类。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用方传入的参数违反契约。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
