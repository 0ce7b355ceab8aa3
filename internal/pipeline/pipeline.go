package pipeline

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"aptconv/internal/diag"
	"aptconv/internal/ranging"
	"aptconv/pkg/contract"
)

// - 单线程、同步：逐文件 Reader → Decoder →（Label）→（Deconvolve）→ Sink。
// - 首错即止：任一阶段出错，记录日志与指标后返回该错误，不处理后续文件。
// - 每个文件句柄由 yield 在所有路径上关闭。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	// Decoders: 键为小写扩展名（含点），如 ".pos"。
	Decoders map[string]contract.Decoder
	Sink     contract.TableWriter
}

// Close 关闭实现了 io.Closer 的输出端（如 SQLite）。
func (c Components) Close() error {
	if cl, ok := c.Sink.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	// RangesPath: 非空时先解析该 .rrng 文件，并对 pos/epos 输入做标注。
	RangesPath string
	// Deconvolve: 标注后按元素展开（需要 RangesPath）。
	Deconvolve bool
	// KeepIntermediate: 除最终阶段外，同时输出 decoded/labeled 表。
	KeepIntermediate bool
}

// 工件阶段名；工件 ID 为 "<fileID>.<stage>"，文件写出端再追加编码器扩展名。
const (
	StageDecoded     = "decoded"
	StageLabeled     = "labeled"
	StageDeconvolved = "deconvolved"
	StageIons        = "ions"
	StageRanges      = "ranges"
)

// Run 执行完整流水线。
// 扩展名未注册的输入以 debug 日志跳过；截断输入的丢弃字节以 warn 记录。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return errors.Wrap(err, "sanity")
	}
	runT := logger.Start("pipeline", "run")
	files := 0

	var ranges *contract.RangeSet
	if set.RangesPath != "" {
		rs, err := LoadRanges(ctx, comp, set.RangesPath, logger)
		if err != nil {
			return err
		}
		ranges = rs
	}

	err := comp.Reader.Iterate(ctx, set.Inputs, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if err := ctx.Err(); err != nil {
			return err
		}
		dec := comp.Decoders[fileID.Ext()]
		if dec == nil {
			logger.DebugStart("pipeline", "skip unsupported input", string(fileID), map[string]string{"ext": fileID.Ext()})
			return nil
		}
		files++
		fr := &fileRun{ctx: ctx, comp: comp, set: set, ranges: ranges, fileID: fileID, logger: logger}
		return fr.process(dec, rc)
	})
	if err != nil {
		return err
	}
	runT.Finish("run", int64(files))
	return nil
}

// LoadRanges 通过 Reader 读取 path，并用 ".rrng" 解码器解析；path 必须恰好对应一个文件。
func LoadRanges(ctx context.Context, comp Components, path string, logger *diag.Logger) (*contract.RangeSet, error) {
	dec := comp.Decoders["."+string(contract.KindRRNG)]
	if dec == nil {
		return nil, errors.Wrap(contract.ErrInvalidInput, "no rrng decoder registered")
	}
	var set *contract.RangeSet
	err := comp.Reader.Iterate(ctx, []string{path}, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if set != nil {
			return errors.Wrapf(contract.ErrInvalidInput, "ranges %s resolves to more than one file", path)
		}
		return stage(logger, "ranges", "parse", string(fileID), func() (int64, error) {
			ds, err := dec.Decode(ctx, fileID, rc)
			if err != nil {
				return 0, err
			}
			if ds.Kind != contract.KindRRNG || ds.Ranges == nil {
				return 0, errors.Wrapf(contract.ErrInvariantViolation, "ranges %s decoded as %s", fileID, ds.Kind)
			}
			set = ds.Ranges
			return int64(len(set.Ranges)), nil
		})
	})
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, errors.Wrapf(contract.ErrInvalidInput, "ranges %s: no file found", path)
	}
	return set, nil
}

func sanity(comp Components, set Settings) error {
	switch {
	case comp.Reader == nil:
		return errors.Wrap(contract.ErrInvalidInput, "reader is nil")
	case comp.Sink == nil:
		return errors.Wrap(contract.ErrInvalidInput, "sink is nil")
	case len(comp.Decoders) == 0:
		return errors.Wrap(contract.ErrInvalidInput, "no decoders")
	case set.Deconvolve && set.RangesPath == "":
		return errors.Wrap(contract.ErrInvalidInput, "deconvolve requires ranges")
	}
	return nil
}

// fileRun 持有单个输入文件的处理状态。
type fileRun struct {
	ctx    context.Context
	comp   Components
	set    Settings
	ranges *contract.RangeSet
	fileID contract.FileID
	logger *diag.Logger
	rows   int
}

func (f *fileRun) process(dec contract.Decoder, r io.Reader) (err error) {
	t := diag.GetTerminal()
	t.FileStart(string(f.fileID))
	start := time.Now()
	defer func() { t.FileFinish(err == nil, f.rows, time.Since(start)) }()

	var ds *contract.Dataset
	if err := stage(f.logger, "decoder", "decode", string(f.fileID), func() (int64, error) {
		var derr error
		ds, derr = dec.Decode(f.ctx, f.fileID, r)
		return int64(ds.Len()), derr
	}); err != nil {
		return err
	}
	if ds.Dropped > 0 {
		f.logger.Warn("decoder", "trailing partial record dropped", string(f.fileID),
			map[string]string{"dropped_bytes": strconv.Itoa(ds.Dropped)})
		t.FileWarn("dropped " + strconv.Itoa(ds.Dropped) + " trailing bytes")
	}

	switch ds.Kind {
	case contract.KindRRNG:
		if ds.Ranges == nil {
			return errors.Wrapf(contract.ErrInvariantViolation, "%s: rrng dataset without ranges", f.fileID)
		}
		if err := f.emit(StageIons, contract.TableOf(StageIons, ds.Ranges.Ions)); err != nil {
			return err
		}
		return f.emit(StageRanges, contract.TableOf(StageRanges, ds.Ranges.Ranges))
	case contract.KindPOS:
		return convert(f, ds.Positions, ds.Extra)
	case contract.KindEPOS:
		return convert(f, ds.Extended, ds.Extra)
	default:
		return errors.Wrapf(contract.ErrInvariantViolation, "%s: unknown dataset kind %q", f.fileID, ds.Kind)
	}
}

// convert 依次产生 decoded → labeled → deconvolved，仅输出最终阶段（KeepIntermediate 时全部输出）。
// extra 为解码器派生列（按输入行对齐），会跟随行映射到每个阶段。
func convert[T contract.Event](f *fileRun, recs []T, extra map[string][]any) error {
	decoded := contract.TableOf(StageDecoded, recs)
	if err := appendExtra(decoded, extra, nil); err != nil {
		return err
	}
	if f.ranges == nil {
		return f.emit(StageDecoded, decoded)
	}
	if f.set.KeepIntermediate {
		if err := f.emit(StageDecoded, decoded); err != nil {
			return err
		}
	}

	var labeled []contract.LabeledRecord[T]
	if err := stage(f.logger, "labeler", "label", string(f.fileID), func() (int64, error) {
		labeled = ranging.Label(recs, f.ranges.Ranges)
		return int64(len(labeled)), nil
	}); err != nil {
		return err
	}
	lt := contract.TableOf(StageLabeled, labeled)
	if err := appendExtra(lt, extra, nil); err != nil {
		return err
	}
	if !f.set.Deconvolve {
		return f.emit(StageLabeled, lt)
	}
	if f.set.KeepIntermediate {
		if err := f.emit(StageLabeled, lt); err != nil {
			return err
		}
	}

	var (
		dec []contract.DeconvolvedRecord[T]
		src []int
	)
	if err := stage(f.logger, "deconvolver", "deconvolve", string(f.fileID), func() (int64, error) {
		var err error
		dec, src, err = ranging.DeconvolveIndexed(labeled)
		return int64(len(dec)), err
	}); err != nil {
		return err
	}
	dt := contract.TableOf(StageDeconvolved, dec)
	if err := appendExtra(dt, extra, src); err != nil {
		return err
	}
	return f.emit(StageDeconvolved, dt)
}

// appendExtra 追加派生列；src 非 nil 时按 src[i] 取源行。列按名称排序以保证输出稳定。
func appendExtra(t *contract.Table, extra map[string][]any, src []int) error {
	for _, name := range sortedKeys(extra) {
		vals := extra[name]
		if src != nil {
			mapped := make([]any, len(src))
			for i, j := range src {
				if j < 0 || j >= len(vals) {
					return errors.Wrapf(contract.ErrInvariantViolation, "column %s: source row %d out of range", name, j)
				}
				mapped[i] = vals[j]
			}
			vals = mapped
		}
		if err := t.AppendColumn(name, vals); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileRun) emit(stageName string, t *contract.Table) error {
	id := contract.ArtifactID(string(f.fileID) + "." + stageName)
	return stage(f.logger, "sink", "write", string(id), func() (int64, error) {
		if err := f.comp.Sink.WriteTable(f.ctx, id, t); err != nil {
			return 0, err
		}
		f.rows += t.Len()
		return int64(t.Len()), nil
	})
}

// stage 统一计时、日志、指标与错误分类。
func stage(logger *diag.Logger, comp, op, fileID string, fn func() (int64, error)) error {
	timer := logger.StartWith(comp, op, fileID)
	t0 := time.Now()
	n, err := fn()
	diag.ObserveDuration(comp, op, time.Since(t0).Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWithKV(comp, string(code), op+" failed", timer.Since(), fileID, map[string]string{"err": err.Error()})
		diag.IncOp(comp, op, "error")
		if code != diag.CodeUnknown {
			diag.IncError(comp, string(code))
		}
		return errors.Wrapf(err, "%s %s", comp, op)
	}
	timer.Finish(op, n)
	diag.IncOp(comp, op, "success")
	return nil
}
