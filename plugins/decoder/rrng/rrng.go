// Package rrng 解析 IVAS 导出的 .rrng 范围文件，得到 Ion 与 Range 两张表。
//
// 每行独立分类：按规则列表顺序匹配，首个命中者生效；均不命中的行（[Ions] 段头、
// Number= 计数、注释等）静默跳过。结构命中但数值字段无法解析时返回 ErrMalformedRange。
package rrng

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"aptconv/pkg/contract"
)

// Options: 预留占位，当前无配置。
type Options struct{}

type decoder struct{}

// New 创建范围文件解码器。
func New(*Options) contract.Decoder { return &decoder{} }

var _ contract.Decoder = (*decoder)(nil)

func (d *decoder) Kind() contract.Kind { return contract.KindRRNG }

func (d *decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (*contract.Dataset, error) {
	set, err := ParseContext(ctx, r)
	if err != nil {
		return nil, errors.Wrapf(err, "rrng: %s", fileID)
	}
	return &contract.Dataset{Kind: contract.KindRRNG, Ranges: set}, nil
}

// rule: 单一行文法；re 命中后由 apply 写入结果。
type rule struct {
	re    *regexp.Regexp
	apply func(p *parser, m []string) error
}

var rules = []rule{
	{
		re:    regexp.MustCompile(`^Ion(\d+)=([A-Za-z0-9]+)`),
		apply: (*parser).ion,
	},
	{
		re:    regexp.MustCompile(`^Range(\d+)=(\S+)\s+(\S+)\s+Vol:(\S+)\s*(.*?)\s*Color:([0-9A-Fa-f]{6})(?:\s.*)?$`),
		apply: (*parser).rng,
	},
}

// decimalRe: 仅十进制数（可带指数）；拒绝 NaN、Inf 与十六进制浮点。
var decimalRe = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

type parser struct {
	line   int
	set    *contract.RangeSet
	ions   map[string]struct{}
	ranges map[string]struct{}
}

// Parse 解析完整的范围文件文本。
func Parse(r io.Reader) (*contract.RangeSet, error) {
	return ParseContext(context.Background(), r)
}

// ParseContext 同 Parse，逐行检查 ctx 取消。
func ParseContext(ctx context.Context, r io.Reader) (*contract.RangeSet, error) {
	p := &parser{
		set:    &contract.RangeSet{},
		ions:   map[string]struct{}{},
		ranges: map[string]struct{}{},
	}
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		p.line++
		if p.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if err := p.classify(strings.TrimSpace(line)); err != nil {
			return nil, err
		}
	}
	return p.set, nil
}

func (p *parser) classify(line string) error {
	for _, ru := range rules {
		if m := ru.re.FindStringSubmatch(line); m != nil {
			return ru.apply(p, m)
		}
	}
	return nil
}

func (p *parser) ion(m []string) error {
	num := m[1]
	if _, dup := p.ions[num]; dup {
		return errors.Wrapf(contract.ErrDuplicateKey, "line %d: Ion%s defined twice", p.line, num)
	}
	p.ions[num] = struct{}{}
	p.set.Ions = append(p.set.Ions, contract.Ion{Number: num, Name: m[2]})
	return nil
}

func (p *parser) rng(m []string) error {
	num := m[1]
	vals := [3]float64{}
	for i, field := range []string{"lower", "upper", "vol"} {
		v, err := strconv.ParseFloat(m[2+i], 64)
		if err == nil && !decimalRe.MatchString(m[2+i]) {
			err = strconv.ErrSyntax
		}
		if err != nil {
			return errors.WithHint(
				errors.Wrapf(contract.ErrMalformedRange, "line %d: Range%s %s %q", p.line, num, field, m[2+i]),
				"range bounds and volume must be decimal numbers")
		}
		vals[i] = v
	}
	if _, dup := p.ranges[num]; dup {
		return errors.Wrapf(contract.ErrDuplicateKey, "line %d: Range%s defined twice", p.line, num)
	}
	p.ranges[num] = struct{}{}
	p.set.Ranges = append(p.set.Ranges, contract.Range{
		Number: num,
		Lower:  vals[0],
		Upper:  vals[1],
		Vol:    vals[2],
		// 空白串归一为单个空格，成分 token 的合法性由 Deconvolver 校验
		Comp:   strings.Join(strings.Fields(m[5]), " "),
		Colour: strings.ToUpper(m[6]),
	})
	return nil
}

// readTrimmedLine 读取一行，归一 CRLF→LF，并去除结尾换行符；返回该行、是否 EOF。
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			eof = true
		} else {
			return "", false, err
		}
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}
