// Package epos 解码 APT .epos 文件：每条记录 44 字节，
// 9 个大端 float32（x, y, z, Da, ns, DC_kV, pulse_kV, det_x, det_y）后接 2 个大端 uint32（pslep, ipp）。
package epos

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
	"aptconv/plugins/decoder/pos"
)

// RecordSize: 单条记录字节数（11 × 4）。
const RecordSize = 11 * pos.FieldSize

// Options: EPOS 解码器选项。
type Options struct {
	// Strict: 同 pos.Options.Strict。
	Strict bool `json:"strict"`
	// Multiplicity: 是否附加按脉冲重建的 multiplicity 派生列。
	Multiplicity bool `json:"multiplicity"`
}

type decoder struct {
	strict       bool
	multiplicity bool
}

// New 创建 EPOS 解码器。
func New(opts *Options) contract.Decoder {
	d := &decoder{}
	if opts != nil {
		d.strict = opts.Strict
		d.multiplicity = opts.Multiplicity
	}
	return d
}

var _ contract.Decoder = (*decoder)(nil)

func (d *decoder) Kind() contract.Kind { return contract.KindEPOS }

func (d *decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (*contract.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "epos: read %s", fileID)
	}
	recs, dropped, err := Decode(b, d.strict)
	if err != nil {
		return nil, errors.Wrapf(err, "epos: %s", fileID)
	}
	ds := &contract.Dataset{Kind: contract.KindEPOS, Extended: recs, Dropped: dropped}
	if d.multiplicity {
		m, err := Multiplicity(recs)
		if err != nil {
			return nil, errors.Wrapf(err, "epos: %s", fileID)
		}
		col := make([]any, len(m))
		for i, v := range m {
			col[i] = v
		}
		ds.Extra = map[string][]any{"multiplicity": col}
	}
	return ds, nil
}

// Decode 按 44 字节定长记录解码 b，返回记录与被丢弃的尾部字节数。
func Decode(b []byte, strict bool) ([]contract.ExtendedPositionRecord, int, error) {
	n, dropped, err := pos.CheckLength(len(b), RecordSize, strict)
	if err != nil {
		return nil, 0, err
	}
	out := make([]contract.ExtendedPositionRecord, n)
	for i := range out {
		off := i * RecordSize
		out[i] = contract.ExtendedPositionRecord{
			PositionRecord: contract.PositionRecord{
				X:  pos.Float(b, off),
				Y:  pos.Float(b, off+4),
				Z:  pos.Float(b, off+8),
				Da: pos.Float(b, off+12),
			},
			NS:      pos.Float(b, off+16),
			DCkV:    pos.Float(b, off+20),
			PulsekV: pos.Float(b, off+24),
			DetX:    pos.Float(b, off+28),
			DetY:    pos.Float(b, off+32),
			Pslep:   binary.BigEndian.Uint32(b[off+36 : off+40]),
			Ipp:     binary.BigEndian.Uint32(b[off+40 : off+44]),
		}
	}
	return out, dropped, nil
}

// Encode 为 Decode 的逆过程。
func Encode(recs []contract.ExtendedPositionRecord) []byte {
	b := make([]byte, len(recs)*RecordSize)
	for i, r := range recs {
		off := i * RecordSize
		pos.PutFloat(b, off, r.X)
		pos.PutFloat(b, off+4, r.Y)
		pos.PutFloat(b, off+8, r.Z)
		pos.PutFloat(b, off+12, r.Da)
		pos.PutFloat(b, off+16, r.NS)
		pos.PutFloat(b, off+20, r.DCkV)
		pos.PutFloat(b, off+24, r.PulsekV)
		pos.PutFloat(b, off+28, r.DetX)
		pos.PutFloat(b, off+32, r.DetY)
		binary.BigEndian.PutUint32(b[off+36:off+40], r.Pslep)
		binary.BigEndian.PutUint32(b[off+40:off+44], r.Ipp)
	}
	return b
}

// Multiplicity 按相邻行重建每条记录所属脉冲的离子数。
// 脉冲首个事件的 ipp 为该脉冲总数 n，其后 n-1 条的 ipp 为 0。
// 出现无归属的 ipp=0 记录，或新脉冲开始时上一脉冲尚未收齐，均返回 ErrMalformedInput。
func Multiplicity(recs []contract.ExtendedPositionRecord) ([]int, error) {
	out := make([]int, len(recs))
	cur, remaining := 0, 0
	for i, r := range recs {
		if r.Ipp > 0 {
			if remaining > 0 {
				return nil, errors.Wrapf(contract.ErrMalformedInput,
					"record %d starts a new pulse while %d events of the previous one are missing", i, remaining)
			}
			cur = int(r.Ipp)
			remaining = cur - 1
			out[i] = cur
			continue
		}
		if remaining == 0 {
			return nil, errors.Wrapf(contract.ErrMalformedInput, "record %d has ipp=0 outside of a multi-hit pulse", i)
		}
		remaining--
		out[i] = cur
	}
	if remaining > 0 {
		return nil, errors.Wrapf(contract.ErrMalformedInput, "last pulse is missing %d events", remaining)
	}
	return out, nil
}
