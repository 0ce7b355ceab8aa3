package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个可运行的默认配置模板：
// 输入为 ./data，输出 CSV 到 ./out；各 Options 列出全部键。
func DefaultTemplateConfig() Config {
	f := false
	cfg := Defaults()
	cfg.Inputs = []string{"data"}
	cfg.Deconvolve = &f
	cfg.StrictLength = &f
	cfg.KeepIntermediate = &f
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git"],
  "exts": [".pos", ".epos", ".rrng"],
  "stdin_name": "stdin.pos"
}`)
	cfg.Options.Decoder.Pos = json.RawMessage(`{"strict": false}`)
	cfg.Options.Decoder.Epos = json.RawMessage(`{"strict": false, "multiplicity": false}`)
	cfg.Options.Decoder.Rrng = json.RawMessage(`{}`)
	cfg.Options.Encoder = json.RawMessage(`{"delimiter": ",", "no_header": false}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true,
  "no_clobber": false,
  "buf_size": 65536
}`)
	return cfg
}

// MarshalTemplate 按目标路径扩展名输出模板：.yaml/.yml、.toml，其余为缩进 JSON。
func MarshalTemplate(path string) ([]byte, error) {
	raw, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
		return append(raw, '\n'), nil
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	if ext == ".toml" {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(tree); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(tree)
}

// EnvTemplate 返回 .env 模板（全部注释，按需取消）。
func EnvTemplate() string {
	keys := []string{
		"INPUTS=data",
		"RANGES=ranges/sample.rrng",
		"DECONVOLVE=false",
		"STRICT_LENGTH=false",
		"KEEP_INTERMEDIATE=false",
		"LOG_LEVEL=info",
		"LOG_DIR=logs",
		"COMPONENTS_READER=fs",
		"COMPONENTS_ENCODER=csv",
		"COMPONENTS_WRITER=fs",
		`OPTIONS_WRITER_JSON={"output_dir":"out"}`,
	}
	var b strings.Builder
	b.WriteString("# aptconv environment overrides (CLI > ENV > config file)\n")
	for _, k := range keys {
		b.WriteString("# " + EnvPrefix + k + "\n")
	}
	return b.String()
}
