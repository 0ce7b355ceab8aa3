package config

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"aptconv/internal/pipeline"
	"aptconv/pkg/contract"
	"aptconv/pkg/registry"
)

func invalid(format string, args ...any) error {
	return errors.Wrapf(contract.ErrInvalidInput, "config: "+format, args...)
}

// Validate 对最小必要边界做静态校验；错误均可 errors.Is(ErrInvalidInput)。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return invalid("inputs empty")
	}
	dash := false
	for _, r := range cfg.Inputs {
		switch strings.TrimSpace(r) {
		case "":
			return invalid("input path cannot be empty")
		case "-":
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other roots")
	}
	if Flag(cfg.Deconvolve) && strings.TrimSpace(cfg.Ranges) == "" {
		return invalid("deconvolve requires ranges")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level %q", cfg.Logging.Level)
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	switch {
	case registry.Writer[wn] != nil:
		if name := effName(cfg.Components.Encoder, d.Components.Encoder); registry.Encoder[name] == nil {
			return invalid("encoder %q not registered", name)
		}
	case registry.TableWriter[wn] != nil:
	default:
		return invalid("writer %q not registered", wn)
	}
	return nil
}

// Describe 返回输出端的简短描述（如 "fs+csv" 或 "sqlite"），供终端提示使用。
func Describe(cfg Config) string {
	d := Defaults()
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	if registry.TableWriter[wn] != nil {
		return wn
	}
	return wn + "+" + effName(cfg.Components.Encoder, d.Components.Encoder)
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()

	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "reader")
	}

	raws := map[contract.Kind]json.RawMessage{
		contract.KindPOS:  cfg.Options.Decoder.Pos,
		contract.KindEPOS: cfg.Options.Decoder.Epos,
		contract.KindRRNG: cfg.Options.Decoder.Rrng,
	}
	decs := make(map[string]contract.Decoder, len(raws))
	for kind, raw := range raws {
		if cfg.StrictLength != nil && kind != contract.KindRRNG {
			if raw, err = WithField(raw, "strict", *cfg.StrictLength); err != nil {
				return pipeline.Components{}, pipeline.Settings{}, errors.Wrapf(err, "decoder %s", kind)
			}
		}
		dec, err := registry.Decoder[string(kind)](raw)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, errors.Wrapf(err, "decoder %s", kind)
		}
		decs["."+string(kind)] = dec
	}

	var sink contract.TableWriter
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	if newW := registry.Writer[wn]; newW != nil {
		en := effName(cfg.Components.Encoder, d.Components.Encoder)
		enc, err := registry.Encoder[en](cfg.Options.Encoder)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, errors.Wrapf(err, "encoder %s", en)
		}
		w, err := newW(cfg.Options.Writer)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, errors.Wrapf(err, "writer %s", wn)
		}
		sink = contract.Encoded(enc, w)
	} else {
		tw, err := registry.TableWriter[wn](cfg.Options.Writer)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, errors.Wrapf(err, "writer %s", wn)
		}
		sink = tw
	}

	comp := pipeline.Components{Reader: r, Decoders: decs, Sink: sink}
	set := pipeline.Settings{
		Inputs:           cloneStrings(cfg.Inputs),
		RangesPath:       strings.TrimSpace(cfg.Ranges),
		Deconvolve:       Flag(cfg.Deconvolve),
		KeepIntermediate: Flag(cfg.KeepIntermediate),
	}
	return comp, set, nil
}

// WithField 在 JSON 对象上设置单个键（raw 为空时视为 {}）。
func WithField(raw json.RawMessage, key string, val any) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Mark(err, contract.ErrInvalidInput)
		}
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	m[key] = b
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
