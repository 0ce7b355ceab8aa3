package config

import "encoding/json"

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知字段在解析期失败。布尔项为指针，nil 表示“未设置”以便分层覆盖。
type Config struct {
	Inputs []string `json:"inputs"`
	// Ranges: 用于标注的 .rrng 文件路径；为空时不做标注与展开。
	Ranges string `json:"ranges"`
	// Deconvolve: 在标注之后按元素展开复合离子（需要 Ranges）。
	Deconvolve *bool `json:"deconvolve,omitempty"`
	// StrictLength: 覆盖 pos/epos 解码器的 strict 选项；为 true 时截断输入直接失败。
	StrictLength *bool `json:"strict_length,omitempty"`
	// KeepIntermediate: 同时输出 decoded/labeled 中间表。
	KeepIntermediate *bool   `json:"keep_intermediate,omitempty"`
	Logging          Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录（轮转策略固定）。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
// Writer 可以是字节流写出端（与 Encoder 组合）或表写出端（忽略 Encoder）。
type Components struct {
	Reader  string `json:"reader"`
	Encoder string `json:"encoder"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader  json.RawMessage `json:"reader,omitempty"`
	Decoder DecoderOptions  `json:"decoder"`
	Encoder json.RawMessage `json:"encoder,omitempty"`
	Writer  json.RawMessage `json:"writer,omitempty"`
}

// DecoderOptions: 按输入种类分开的解码器选项。
type DecoderOptions struct {
	Pos  json.RawMessage `json:"pos,omitempty"`
	Epos json.RawMessage `json:"epos,omitempty"`
	Rrng json.RawMessage `json:"rrng,omitempty"`
}

// Flag 读取可选布尔项，nil 视为 false。
func Flag(b *bool) bool { return b != nil && *b }
