// Package ranging 按范围表为离子事件打标签，并将复合离子按元素展开。
//
// 两个操作都是纯函数：输入不被修改，输出为新切片。
package ranging

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

// Label 为每条记录附加成分与颜色。
// 初始为 ("", DefaultColour)；按 ranges 顺序逐个应用，闭区间命中即覆盖，
// 因此区间重叠时以后出现者为准。
func Label[T contract.Event](recs []T, ranges []contract.Range) []contract.LabeledRecord[T] {
	out := make([]contract.LabeledRecord[T], len(recs))
	for i, r := range recs {
		out[i] = contract.LabeledRecord[T]{Record: r, Colour: contract.DefaultColour}
	}
	for _, rg := range ranges {
		colour := "#" + rg.Colour
		for i := range out {
			if rg.Contains(out[i].MassToCharge()) {
				out[i].Comp = rg.Comp
				out[i].Colour = colour
			}
		}
	}
	return out
}

// Component: 成分中的单个 Element:Count。
// N 保留源文本（如 "2"），不做数值归一。
type Component struct {
	Element string
	N       string
}

var componentRe = regexp.MustCompile(`^[A-Za-z]+:[0-9]+$`)

// ParseComposition 将 "Fe:2 O:3" 拆为组件序列；任一 token 不合法返回 ErrMalformedComposition。
// 空串得到空序列。
func ParseComposition(comp string) ([]Component, error) {
	toks := strings.Fields(comp)
	out := make([]Component, 0, len(toks))
	for _, tok := range toks {
		if !componentRe.MatchString(tok) {
			return nil, errors.WithHint(
				errors.Wrapf(contract.ErrMalformedComposition, "token %q in %q", tok, comp),
				"composition tokens look like Element:Count, e.g. Fe:2")
		}
		el, n, _ := strings.Cut(tok, ":")
		out = append(out, Component{Element: el, N: n})
	}
	return out, nil
}

// Deconvolve 将已标注记录按成分展开。
//
// 记录按 comp 原文分组（组顺序为首次出现顺序，空 comp 不参与）；
// 对每组的每个组件，依次输出该组全部记录的一个副本并填入 Element/N。
// 因此 "Fe:2 O:3" 的一个事件产生两行，空间与质荷比字段保持不变。
func Deconvolve[T contract.Event](recs []contract.LabeledRecord[T]) ([]contract.DeconvolvedRecord[T], error) {
	out, _, err := DeconvolveIndexed(recs)
	return out, err
}

// DeconvolveIndexed 同 Deconvolve，另返回每个输出行对应的输入下标，用于对齐派生列。
func DeconvolveIndexed[T contract.Event](recs []contract.LabeledRecord[T]) ([]contract.DeconvolvedRecord[T], []int, error) {
	var order []string
	groups := map[string][]int{}
	for i, r := range recs {
		if r.Comp == "" {
			continue
		}
		if _, ok := groups[r.Comp]; !ok {
			order = append(order, r.Comp)
		}
		groups[r.Comp] = append(groups[r.Comp], i)
	}

	var out []contract.DeconvolvedRecord[T]
	var src []int
	for _, comp := range order {
		parts, err := ParseComposition(comp)
		if err != nil {
			return nil, nil, err
		}
		idx := groups[comp]
		for _, c := range parts {
			for _, i := range idx {
				out = append(out, contract.DeconvolvedRecord[T]{
					LabeledRecord: recs[i],
					Element:       c.Element,
					N:             c.N,
				})
				src = append(src, i)
			}
		}
	}
	return out, src, nil
}
