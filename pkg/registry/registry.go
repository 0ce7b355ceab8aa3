// Package registry 以显式工厂表（零反射）将配置中的组件名映射到实现。
// 各工厂接收原样 JSON Options 并严格解码，未知字段报错。
package registry

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
	dep "aptconv/plugins/decoder/epos"
	dpos "aptconv/plugins/decoder/pos"
	drr "aptconv/plugins/decoder/rrng"
	ecsv "aptconv/plugins/encoder/csv"
	ejl "aptconv/plugins/encoder/jsonl"
	rfs "aptconv/plugins/reader/filesystem"
	wfs "aptconv/plugins/writer/filesystem"
	wsql "aptconv/plugins/writer/sqlite"
)

// strictUnmarshal: DisallowUnknownFields 严格解码；失败标记为 ErrInvalidInput。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "options"), contract.ErrInvalidInput)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewEncoder 工厂签名：接收原样 JSON Options。
type NewEncoder func(raw json.RawMessage) (contract.Encoder, error)

// NewWriter 工厂签名：字节流写出端，需与 Encoder 组合使用。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewTableWriter 工厂签名：直接接收表的写出端。
type NewTableWriter func(raw json.RawMessage) (contract.TableWriter, error)

// Reader 工厂注册表。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder 工厂注册表；键与 contract.Kind 及输入扩展名（去点）一致。
var Decoder = map[string]NewDecoder{
	string(contract.KindPOS): func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dpos.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dpos.New(&opts), nil
	},
	string(contract.KindEPOS): func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dep.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dep.New(&opts), nil
	},
	string(contract.KindRRNG): func(raw json.RawMessage) (contract.Decoder, error) {
		var opts drr.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return drr.New(&opts), nil
	},
}

// Encoder 工厂注册表。
var Encoder = map[string]NewEncoder{
	"csv": func(raw json.RawMessage) (contract.Encoder, error) {
		var opts ecsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ecsv.New(&opts)
	},
	"jsonl": func(raw json.RawMessage) (contract.Encoder, error) {
		var opts ejl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ejl.New(&opts), nil
	},
}

// Writer 工厂注册表（字节流）。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// TableWriter 工厂注册表（表）。返回值可能实现 io.Closer，由调用方在运行结束时关闭。
var TableWriter = map[string]NewTableWriter{
	// sqlite: 每个工件一张表
	"sqlite": func(raw json.RawMessage) (contract.TableWriter, error) {
		var opts wsql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wsql.Open(&opts)
	},
}
