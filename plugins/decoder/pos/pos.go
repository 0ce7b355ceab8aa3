// Package pos 解码 APT .pos 文件：每条记录 16 字节，4 个大端 float32（x, y, z, Da）。
package pos

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

const (
	// FieldSize: 单字段字节数。
	FieldSize = 4
	// RecordSize: 单条记录字节数。
	RecordSize = 4 * FieldSize
)

// Options: POS 解码器选项。
type Options struct {
	// Strict: 长度为 4 的倍数但不是 16 的倍数时是否报错。
	// 默认 false：丢弃尾部不完整记录，并通过 Dataset.Dropped 上报字节数。
	Strict bool `json:"strict"`
}

type decoder struct {
	strict bool
}

// New 创建 POS 解码器。
func New(opts *Options) contract.Decoder {
	d := &decoder{}
	if opts != nil {
		d.strict = opts.Strict
	}
	return d
}

var _ contract.Decoder = (*decoder)(nil)

func (d *decoder) Kind() contract.Kind { return contract.KindPOS }

func (d *decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (*contract.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "pos: read %s", fileID)
	}
	recs, dropped, err := Decode(b, d.strict)
	if err != nil {
		return nil, errors.Wrapf(err, "pos: %s", fileID)
	}
	return &contract.Dataset{Kind: contract.KindPOS, Positions: recs, Dropped: dropped}, nil
}

// Decode 按 16 字节定长记录解码 b，返回记录与被丢弃的尾部字节数。
func Decode(b []byte, strict bool) ([]contract.PositionRecord, int, error) {
	n, dropped, err := CheckLength(len(b), RecordSize, strict)
	if err != nil {
		return nil, 0, err
	}
	out := make([]contract.PositionRecord, n)
	for i := range out {
		off := i * RecordSize
		out[i] = contract.PositionRecord{
			X:  Float(b, off),
			Y:  Float(b, off+4),
			Z:  Float(b, off+8),
			Da: Float(b, off+12),
		}
	}
	return out, dropped, nil
}

// Encode 为 Decode 的逆过程（float64 收窄为 float32）。
func Encode(recs []contract.PositionRecord) []byte {
	b := make([]byte, len(recs)*RecordSize)
	for i, r := range recs {
		off := i * RecordSize
		PutFloat(b, off, r.X)
		PutFloat(b, off+4, r.Y)
		PutFloat(b, off+8, r.Z)
		PutFloat(b, off+12, r.Da)
	}
	return b
}

// CheckLength 校验字节长度并返回完整记录数与尾部剩余字节数。
// 不是 4 的倍数一律失败；严格模式下不是 recordSize 的倍数同样失败。
func CheckLength(length, recordSize int, strict bool) (n, dropped int, err error) {
	if length%FieldSize != 0 {
		return 0, 0, errors.WithHint(
			errors.Wrapf(contract.ErrMalformedInput, "%d bytes is not a multiple of %d", length, FieldSize),
			"the file is truncated or not a big-endian float32 stream")
	}
	dropped = length % recordSize
	if dropped != 0 && strict {
		return 0, 0, errors.Wrapf(contract.ErrMalformedInput,
			"%d bytes is not a multiple of the %d-byte record (%d trailing bytes)", length, recordSize, dropped)
	}
	return length / recordSize, dropped, nil
}

// Float 读取 off 处的大端 float32。
// NaN 按位展开（符号、signalling 位与 payload 保留），使 Decode→Encode 逐位往返。
func Float(b []byte, off int) float64 {
	u := binary.BigEndian.Uint32(b[off : off+4])
	f := math.Float32frombits(u)
	if f == f {
		return float64(f)
	}
	return math.Float64frombits(uint64(u>>31)<<63 | 0x7FF<<52 | uint64(u&nanMant32)<<29)
}

// PutFloat 以大端 float32 写入 off 处；NaN 取 Float 的逆映射。
func PutFloat(b []byte, off int, v float64) {
	var u uint32
	if v == v {
		u = math.Float32bits(float32(v))
	} else {
		u64 := math.Float64bits(v)
		mant := uint32(u64>>29) & nanMant32
		if mant == 0 {
			// payload 只在低 29 位的 NaN 收窄后会变成 Inf，置 quiet 位
			mant = 1 << 22
		}
		u = uint32(u64>>63)<<31 | 0xFF<<23 | mant
	}
	binary.BigEndian.PutUint32(b[off:off+4], u)
}

const nanMant32 = 1<<23 - 1
