package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptconv/pkg/contract"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFileFormats(t *testing.T) {
	jsonPath := writeFile(t, "c.json", `{
  "inputs": ["data"],
  "ranges": "r.rrng",
  "deconvolve": true,
  "components": {"writer": "sqlite"},
  "options": {"writer": {"path": "out.db"}, "decoder": {"epos": {"multiplicity": true}}}
}`)
	yamlPath := writeFile(t, "c.yaml", `
inputs: [data]
ranges: r.rrng
deconvolve: true
components:
  writer: sqlite
options:
  writer:
    path: out.db
  decoder:
    epos:
      multiplicity: true
`)
	tomlPath := writeFile(t, "c.toml", `
inputs = ["data"]
ranges = "r.rrng"
deconvolve = true

[components]
writer = "sqlite"

[options.writer]
path = "out.db"

[options.decoder.epos]
multiplicity = true
`)
	for _, p := range []string{jsonPath, yamlPath, tomlPath} {
		cfg, err := LoadFile(p)
		require.NoError(t, err, p)
		assert.Equal(t, []string{"data"}, cfg.Inputs, p)
		assert.Equal(t, "r.rrng", cfg.Ranges, p)
		assert.True(t, Flag(cfg.Deconvolve), p)
		assert.Equal(t, "sqlite", cfg.Components.Writer, p)
		assert.JSONEq(t, `{"path":"out.db"}`, string(cfg.Options.Writer), p)
		assert.JSONEq(t, `{"multiplicity":true}`, string(cfg.Options.Decoder.Epos), p)
	}
}

func TestLoadFileUnknownField(t *testing.T) {
	for _, p := range []string{
		writeFile(t, "u.json", `{"unknown":1}`),
		writeFile(t, "u.yaml", "unknown: 1\n"),
		writeFile(t, "u.toml", "unknown = 1\n"),
	} {
		_, err := LoadFile(p)
		assert.True(t, errors.Is(err, contract.ErrInvalidInput), p)
	}
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadJSONNoSource(t *testing.T) {
	_, err := LoadJSON("", nil)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestEnvOverlay(t *testing.T) {
	over, err := EnvOverlay([]string{
		"APTCONV_INPUTS=a, b ,",
		"APTCONV_RANGES=r.rrng",
		"APTCONV_DECONVOLVE=true",
		"APTCONV_STRICT_LENGTH=0",
		"APTCONV_LOG_LEVEL=debug",
		"APTCONV_COMPONENTS_ENCODER=jsonl",
		`APTCONV_OPTIONS_DECODER_EPOS_JSON={"multiplicity":true}`,
		"APTCONV_KEEP_INTERMEDIATE=",
		"OTHER_INPUTS=x",
		"APTCONV_UNKNOWN=1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, over.Inputs)
	assert.Equal(t, "r.rrng", over.Ranges)
	require.NotNil(t, over.Deconvolve)
	assert.True(t, *over.Deconvolve)
	require.NotNil(t, over.StrictLength)
	assert.False(t, *over.StrictLength)
	assert.Nil(t, over.KeepIntermediate, "空值不覆盖")
	assert.Equal(t, "debug", over.Logging.Level)
	assert.Equal(t, "jsonl", over.Components.Encoder)
	assert.JSONEq(t, `{"multiplicity":true}`, string(over.Options.Decoder.Epos))
}

func TestEnvOverlayInvalid(t *testing.T) {
	_, err := EnvOverlay([]string{"APTCONV_DECONVOLVE=maybe"})
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	_, err = EnvOverlay([]string{"APTCONV_OPTIONS_WRITER_JSON={bad"})
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestMergePrecedence(t *testing.T) {
	tr, f := true, false
	base := Defaults()
	base.Inputs = []string{"file"}
	base.Deconvolve = &tr
	base.Options.Writer = json.RawMessage(`{"output_dir":"a"}`)

	over := Config{
		Inputs:     []string{"env"},
		Deconvolve: &f,
		Components: Components{Encoder: "jsonl"},
		Options:    Options{Writer: json.RawMessage(`{"output_dir":"b"}`)},
	}
	out := Merge(base, over)
	assert.Equal(t, []string{"env"}, out.Inputs)
	assert.False(t, Flag(out.Deconvolve), "显式 false 可覆盖 true")
	assert.Equal(t, "jsonl", out.Components.Encoder)
	assert.Equal(t, "fs", out.Components.Writer)
	assert.JSONEq(t, `{"output_dir":"b"}`, string(out.Options.Writer))

	// 空覆盖不改变任何值
	assert.Equal(t, out, Merge(out, Config{}))

	// 深拷贝
	over.Inputs[0] = "mutated"
	assert.Equal(t, "env", out.Inputs[0])
}

func TestValidate(t *testing.T) {
	ok := DefaultTemplateConfig()
	require.NoError(t, Validate(ok))

	cases := map[string]func(c *Config){
		"empty inputs":     func(c *Config) { c.Inputs = nil },
		"blank input":      func(c *Config) { c.Inputs = []string{" "} },
		"dash mix":         func(c *Config) { c.Inputs = []string{"-", "a"} },
		"deconvolve alone": func(c *Config) { tr := true; c.Deconvolve = &tr; c.Ranges = "" },
		"bad level":        func(c *Config) { c.Logging.Level = "loud" },
		"bad reader":       func(c *Config) { c.Components.Reader = "s3" },
		"bad encoder":      func(c *Config) { c.Components.Encoder = "parquet" },
		"bad writer":       func(c *Config) { c.Components.Writer = "kafka" },
	}
	for name, mutate := range cases {
		c := DefaultTemplateConfig()
		mutate(&c)
		assert.True(t, errors.Is(Validate(c), contract.ErrInvalidInput), name)
	}

	// 表写出端忽略 encoder
	c := DefaultTemplateConfig()
	c.Components.Writer = "sqlite"
	c.Components.Encoder = "parquet"
	assert.NoError(t, Validate(c))
	assert.Equal(t, "sqlite", Describe(c))
	assert.Equal(t, "fs+csv", Describe(DefaultTemplateConfig()))
}

func TestAssembleFS(t *testing.T) {
	cfg := DefaultTemplateConfig()
	tr := true
	cfg.StrictLength = &tr
	cfg.Ranges = " r.rrng "
	cfg.Deconvolve = &tr
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"` + filepath.ToSlash(t.TempDir()) + `"}`)

	comp, set, err := Assemble(cfg)
	require.NoError(t, err)
	assert.NotNil(t, comp.Reader)
	assert.NotNil(t, comp.Sink)
	require.Len(t, comp.Decoders, 3)
	assert.Equal(t, contract.KindPOS, comp.Decoders[".pos"].Kind())
	assert.Equal(t, contract.KindEPOS, comp.Decoders[".epos"].Kind())
	assert.Equal(t, contract.KindRRNG, comp.Decoders[".rrng"].Kind())
	assert.Equal(t, "r.rrng", set.RangesPath)
	assert.True(t, set.Deconvolve)
	assert.False(t, set.KeepIntermediate)
	assert.Equal(t, []string{"data"}, set.Inputs)
}

func TestAssembleSQLite(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Components.Writer = "sqlite"
	cfg.Options.Writer = json.RawMessage(`{"path":"` + filepath.ToSlash(filepath.Join(t.TempDir(), "o.db")) + `"}`)
	comp, _, err := Assemble(cfg)
	require.NoError(t, err)
	assert.NoError(t, comp.Close())
}

func TestAssembleBadOptions(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Options.Decoder.Pos = json.RawMessage(`{"bogus":1}`)
	_, _, err := Assemble(cfg)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))

	cfg = DefaultTemplateConfig()
	tr := true
	cfg.StrictLength = &tr
	cfg.Options.Decoder.Epos = json.RawMessage(`[1]`)
	_, _, err = Assemble(cfg)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestWithField(t *testing.T) {
	raw, err := WithField(nil, "strict", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strict":true}`, string(raw))
	raw, err = WithField(json.RawMessage(`{"strict":false,"multiplicity":true}`), "strict", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strict":true,"multiplicity":true}`, string(raw))
}

func TestTemplateRoundTrip(t *testing.T) {
	for _, name := range []string{"aptconv.json", "aptconv.yaml", "aptconv.toml"} {
		b, err := MarshalTemplate(name)
		require.NoError(t, err, name)
		p := writeFile(t, name, string(b))
		cfg, err := LoadFile(p)
		require.NoError(t, err, name)
		assert.NoError(t, Validate(cfg), name)
		assert.Equal(t, []string{"data"}, cfg.Inputs, name)
		assert.JSONEq(t, string(DefaultTemplateConfig().Options.Writer), string(cfg.Options.Writer), name)
	}
	assert.Contains(t, EnvTemplate(), "# APTCONV_INPUTS=data")
}
