package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string

// PositionRecord: 单个离子事件（POS）。
// 字段按文件中的 float32 解码后无损扩展为 float64；顺序即探测顺序。
type PositionRecord struct {
	X  float64
	Y  float64
	Z  float64
	Da float64 // 质荷比
}

// MassToCharge 返回 Da。
func (p PositionRecord) MassToCharge() float64 { return p.Da }

// Header 返回列名（与源格式约定的列名一致）。
func (PositionRecord) Header() []string { return []string{"x", "y", "z", "Da"} }

// Cells 返回与 Header 对齐的单元格。
func (p PositionRecord) Cells() []any { return []any{p.X, p.Y, p.Z, p.Da} }

// ExtendedPositionRecord: EPOS 记录。
// Pslep/Ipp 仅在多击脉冲的首个事件上非零；解释需跨相邻行（见 epos.Multiplicity）。
type ExtendedPositionRecord struct {
	PositionRecord
	NS      float64 // 飞行时间
	DCkV    float64
	PulsekV float64
	DetX    float64
	DetY    float64
	Pslep   uint32 // pulses since last event pulse
	Ipp     uint32 // ions per pulse
}

func (ExtendedPositionRecord) Header() []string {
	return []string{"x", "y", "z", "Da", "ns", "DC_kV", "pulse_kV", "det_x", "det_y", "pslep", "ipp"}
}

func (e ExtendedPositionRecord) Cells() []any {
	return []any{e.X, e.Y, e.Z, e.Da, e.NS, e.DCkV, e.PulsekV, e.DetX, e.DetY, e.Pslep, e.Ipp}
}

// Event: 任何带 Da 列、可平铺为表行的记录。
// Labeler/Deconvolver 只依赖该约束，因此 POS 与 EPOS 共用同一实现。
type Event interface {
	MassToCharge() float64
	Row
}

// Ion: 范围文件中的命名离子（number 为解析得到的主键）。
type Ion struct {
	Number string
	Name   string
}

func (Ion) Header() []string { return []string{"number", "name"} }
func (i Ion) Cells() []any   { return []any{i.Number, i.Name} }

// Range: 质荷比闭区间 [Lower, Upper] 及其成分与颜色。
// Colour 为 6 位十六进制（不含 '#'）；Comp 为以空格分隔的 "Element:Count" 序列，可为空。
type Range struct {
	Number string
	Lower  float64
	Upper  float64
	Vol    float64
	Comp   string
	Colour string
}

// Contains 判定 da 是否落在闭区间内。
func (r Range) Contains(da float64) bool { return da >= r.Lower && da <= r.Upper }

func (Range) Header() []string {
	return []string{"number", "lower", "upper", "vol", "comp", "colour"}
}

func (r Range) Cells() []any { return []any{r.Number, r.Lower, r.Upper, r.Vol, r.Comp, r.Colour} }

// RangeSet: 一个范围文件的两张表，均保持解析顺序。
type RangeSet struct {
	Ions   []Ion
	Ranges []Range
}

// Ion 按 number 查找。
func (s *RangeSet) Ion(number string) (Ion, bool) {
	if s == nil {
		return Ion{}, false
	}
	for _, i := range s.Ions {
		if i.Number == number {
			return i, true
		}
	}
	return Ion{}, false
}

// Range 按 number 查找。
func (s *RangeSet) Range(number string) (Range, bool) {
	if s == nil {
		return Range{}, false
	}
	for _, r := range s.Ranges {
		if r.Number == number {
			return r, true
		}
	}
	return Range{}, false
}

// DefaultColour: 未标注离子的颜色。
const DefaultColour = "#FFFFFF"

// LabeledRecord: 附加了成分与颜色的记录。
// Colour 形如 "#RRGGBB"；未命中任何范围时为 ("", DefaultColour)。
type LabeledRecord[T Event] struct {
	Record T
	Comp   string
	Colour string
}

func (l LabeledRecord[T]) MassToCharge() float64 { return l.Record.MassToCharge() }

func (l LabeledRecord[T]) Header() []string {
	return append(l.Record.Header(), "comp", "colour")
}

func (l LabeledRecord[T]) Cells() []any {
	return append(l.Record.Cells(), l.Comp, l.Colour)
}

// DeconvolvedRecord: 复合离子按元素展开后的单行。
// 空间/质荷比字段在同一事件的各副本间保持不变。
type DeconvolvedRecord[T Event] struct {
	LabeledRecord[T]
	Element string
	N       string // 化学计量数（保留源文本）
}

func (d DeconvolvedRecord[T]) Header() []string {
	return append(d.LabeledRecord.Header(), "element", "n")
}

func (d DeconvolvedRecord[T]) Cells() []any {
	return append(d.LabeledRecord.Cells(), d.Element, d.N)
}
