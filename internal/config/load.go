package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"aptconv/pkg/contract"
)

// EnvPrefix: 环境变量前缀。
const EnvPrefix = "APTCONV_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Logging: Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:  "fs",
			Encoder: "csv",
			Writer:  "fs",
		},
	}
}

// LoadFile 按扩展名选择格式：.json（默认）、.yaml/.yml、.toml。
// YAML/TOML 先归一为 JSON，再走同一严格解码，未知字段一律报错。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	var tree any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &tree); err != nil {
			return Config{}, errors.Mark(errors.Wrapf(err, "config: yaml %s", path), contract.ErrInvalidInput)
		}
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(b), &m); err != nil {
			return Config{}, errors.Mark(errors.Wrapf(err, "config: toml %s", path), contract.ErrInvalidInput)
		}
		tree = m
	default:
		cfg, err := LoadJSON("", b)
		return cfg, errors.Wrapf(err, "config: %s", path)
	}
	raw, err := json.Marshal(normalize(tree))
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: %s", path)
	}
	cfg, err := LoadJSON("", raw)
	return cfg, errors.Wrapf(err, "config: %s", path)
}

// normalize 将 YAML 可能产生的 map[any]any 转为 map[string]any，便于 JSON 编码。
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[toString(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
}

func toString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	b, _ := json.Marshal(k)
	return strings.Trim(string(b), `"`)
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.Wrap(contract.ErrInvalidInput, "no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Mark(err, contract.ErrInvalidInput)
	}
	return cfg, nil
}

// Merge 按优先级合并（over 覆盖 base）。
// 标量、字符串与原样 JSON 整体替换，不做深度合并；nil/空值不覆盖。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Ranges); s != "" {
		out.Ranges = s
	}
	if over.Deconvolve != nil {
		out.Deconvolve = boolp(*over.Deconvolve)
	}
	if over.StrictLength != nil {
		out.StrictLength = boolp(*over.StrictLength)
	}
	if over.KeepIntermediate != nil {
		out.KeepIntermediate = boolp(*over.KeepIntermediate)
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Encoder != "" {
		out.Components.Encoder = over.Components.Encoder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	out.Options.Reader = pickRaw(out.Options.Reader, over.Options.Reader)
	out.Options.Encoder = pickRaw(out.Options.Encoder, over.Options.Encoder)
	out.Options.Writer = pickRaw(out.Options.Writer, over.Options.Writer)
	out.Options.Decoder.Pos = pickRaw(out.Options.Decoder.Pos, over.Options.Decoder.Pos)
	out.Options.Decoder.Epos = pickRaw(out.Options.Decoder.Epos, over.Options.Decoder.Epos)
	out.Options.Decoder.Rrng = pickRaw(out.Options.Decoder.Rrng, over.Options.Decoder.Rrng)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，前缀 APTCONV_）。
// 支持：INPUTS, RANGES, DECONVOLVE, STRICT_LENGTH, KEEP_INTERMEDIATE, LOG_LEVEL, LOG_DIR,
// COMPONENTS_{READER,ENCODER,WRITER},
// OPTIONS_{READER,ENCODER,WRITER,DECODER_POS,DECODER_EPOS,DECODER_RRNG}_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		val = strings.TrimSpace(val)
		if val == "" {
			// 空值视为未设置，避免清空文件配置
			continue
		}
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "RANGES":
			over.Ranges = val
		case "DECONVOLVE", "STRICT_LENGTH", "KEEP_INTERMEDIATE":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return Config{}, errors.Wrapf(contract.ErrInvalidInput, "env %s: %q is not a bool", key, val)
			}
			switch nk {
			case "DECONVOLVE":
				over.Deconvolve = &b
			case "STRICT_LENGTH":
				over.StrictLength = &b
			default:
				over.KeepIntermediate = &b
			}
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_ENCODER":
			over.Components.Encoder = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON", "OPTIONS_ENCODER_JSON", "OPTIONS_WRITER_JSON",
			"OPTIONS_DECODER_POS_JSON", "OPTIONS_DECODER_EPOS_JSON", "OPTIONS_DECODER_RRNG_JSON":
			if !json.Valid([]byte(val)) {
				return Config{}, errors.Wrapf(contract.ErrInvalidInput, "env %s: invalid JSON", key)
			}
			raw := json.RawMessage(val)
			switch nk {
			case "OPTIONS_READER_JSON":
				over.Options.Reader = raw
			case "OPTIONS_ENCODER_JSON":
				over.Options.Encoder = raw
			case "OPTIONS_WRITER_JSON":
				over.Options.Writer = raw
			case "OPTIONS_DECODER_POS_JSON":
				over.Options.Decoder.Pos = raw
			case "OPTIONS_DECODER_EPOS_JSON":
				over.Options.Decoder.Epos = raw
			default:
				over.Options.Decoder.Rrng = raw
			}
		}
	}
	return over, nil
}

func boolp(b bool) *bool { return &b }

func pickRaw(base, over json.RawMessage) json.RawMessage {
	if len(over) > 0 {
		return cloneRaw(over)
	}
	return base
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
