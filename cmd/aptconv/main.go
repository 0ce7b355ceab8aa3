package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "aptconv/internal/config"
	"aptconv/internal/diag"
	"aptconv/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 子命令：run（默认）| ranges | watch | init-config | version。
// 位置参数为 roots（文件/目录 或 "-" 表示 STDIN，不能与其他根混用）。
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行一次命令行调用并返回退出码。
func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load(".env")

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "错误: %v\n", err)
		if h := errors.FlattenHints(err); h != "" {
			fmt.Fprintf(stderr, "提示: %s\n", h)
		}
	}
	return diag.ExitCode(err)
}

// globalFlags 对所有子命令生效。
type globalFlags struct {
	config   string
	logLevel string
	logDir   string
	status   bool
}

// runFlags 覆盖配置中的运行参数。
type runFlags struct {
	ranges           string
	deconvolve       bool
	keepIntermediate bool
	strictLength     bool
	encoder          string
	writer           string
	out              string
	db               string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rf := &runFlags{}
	root := &cobra.Command{
		Use:   "aptconv [roots...]",
		Short: "原子探针（APT）POS/EPOS/RRNG 数据转换",
		Long: `aptconv 将 POS/EPOS 二进制与 RRNG 范围文件转换为表格（CSV/JSONL/SQLite），
可选按范围文件标注离子并按元素展开复合离子。

示例:
  aptconv run data/ --ranges r.rrng --deconvolve --out out
  aptconv ranges r.rrng
  aptconv watch data/ --ranges r.rrng
  aptconv init-config --format yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, g, rf, args, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	bindGlobalFlags(root.PersistentFlags(), g)
	bindRunFlags(root.Flags(), rf)

	root.AddCommand(
		newRunCmd(g, stderr),
		newRangesCmd(),
		newWatchCmd(g, stderr),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func bindGlobalFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.StringVarP(&g.config, "config", "c", "", "配置文件（JSON/YAML/TOML）；缺省读取 APTCONV_CONFIG_FILE 或 ./config.{json,yaml,yml,toml}")
	fs.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	fs.StringVar(&g.logDir, "log-dir", "", "日志目录（覆盖配置）")
	fs.BoolVar(&g.status, "status", true, "终端状态提示（stderr）")
}

func bindRunFlags(fs *pflag.FlagSet, rf *runFlags) {
	fs.StringVarP(&rf.ranges, "ranges", "r", "", "范围文件（.rrng），用于标注离子")
	fs.BoolVar(&rf.deconvolve, "deconvolve", false, "标注后按元素展开复合离子（需要 --ranges）")
	fs.BoolVar(&rf.keepIntermediate, "keep-intermediate", false, "同时输出 decoded/labeled 中间表")
	fs.BoolVar(&rf.strictLength, "strict-length", false, "记录不完整的尾部字节视为错误")
	fs.StringVar(&rf.encoder, "encoder", "", "编码器 csv|jsonl（覆盖配置）")
	fs.StringVar(&rf.writer, "writer", "", "输出端 fs|sqlite（覆盖配置）")
	fs.StringVarP(&rf.out, "out", "o", "", "fs 输出目录（覆盖 options.writer.output_dir）")
	fs.StringVar(&rf.db, "db", "", "SQLite 数据库路径（隐含 --writer sqlite）")
}

func newRunCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "转换输入文件",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, g, rf, args, stderr)
		},
	}
	bindRunFlags(cmd.Flags(), rf)
	return cmd
}

// session 为一次运行装配好的配置、日志与组件。
type session struct {
	cfg    cfgpkg.Config
	logger *diag.Logger
	comp   pipeline.Components
	set    pipeline.Settings
	term   *diag.Terminal
}

func (s *session) close() {
	if err := s.comp.Close(); err != nil {
		s.logger.Warn("pipeline", "close sink failed", "", map[string]string{"err": err.Error()})
	}
	diag.SetTerminal(nil)
	_ = s.logger.Close()
}

// openSession: 默认值 → 配置文件 → ENV → CLI → Validate → Assemble。
func openSession(cmd *cobra.Command, g *globalFlags, rf *runFlags, roots []string, stderr io.Writer) (*session, error) {
	cfg, err := loadConfig(g.config)
	if err != nil {
		return nil, err
	}
	cfg = cfgpkg.Merge(cfg, cliOverlay(cmd.Flags(), g, rf, roots))
	if cfg, err = applyWriterFlags(cfg, rf); err != nil {
		return nil, err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		dumpConfig(stderr, cfg)
		return nil, err
	}

	logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble failed", nil)
		_ = logger.Close()
		return nil, err
	}
	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"ranges":       cfg.Ranges,
		"deconvolve":   fmt.Sprintf("%t", set.Deconvolve),
		"reader":       cfg.Components.Reader,
		"encoder":      cfg.Components.Encoder,
		"writer":       cfg.Components.Writer,
	})

	term := diag.NewTerminal(stderr, g.status)
	diag.SetTerminal(term)
	return &session{cfg: cfg, logger: logger, comp: comp, set: set, term: term}, nil
}

func runConvert(cmd *cobra.Command, g *globalFlags, rf *runFlags, roots []string, stderr io.Writer) error {
	s, err := openSession(cmd, g, rf, roots, stderr)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return s.convert(ctx, s.set)
}

// convert 运行一次流水线，并记录首错、指标与终端状态。
func (s *session) convert(ctx context.Context, set pipeline.Settings) error {
	start := time.Now()
	s.term.RunStart(len(set.Inputs), cfgpkg.Describe(s.cfg))
	if err := pipelineRun(ctx, s.comp, set, s.logger); err != nil {
		code := string(diag.Classify(err))
		s.logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "finish", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		s.logger.InfoKV("pipeline", "metrics", diag.SnapshotKV())
		s.term.RunFinish(false, time.Since(start))
		return err
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	s.logger.InfoKV("pipeline", "metrics", diag.SnapshotKV())
	s.term.RunFinish(true, time.Since(start))
	return nil
}

// loadConfig: 显式路径 > APTCONV_CONFIG_JSON > APTCONV_CONFIG_FILE > 工作目录默认文件；随后叠加 ENV。
func loadConfig(path string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	var (
		base cfgpkg.Config
		err  error
		have bool
	)
	switch raw := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); {
	case path != "":
		base, err = cfgpkg.LoadFile(path)
		have = true
	case raw != "":
		base, err = cfgpkg.LoadJSON("", []byte(raw))
		have = true
	default:
		for _, name := range []string{"config.json", "config.yaml", "config.yml", "config.toml"} {
			if _, serr := os.Stat(name); serr == nil {
				base, err = cfgpkg.LoadFile(name)
				have = true
				break
			}
		}
	}
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	if have {
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, errors.Wrap(err, "env overlay")
	}
	return cfgpkg.Merge(cfg, env), nil
}

// cliOverlay 只采纳显式给出的旗标；布尔旗标以 Changed 判定，允许 --deconvolve=false 覆盖配置。
func cliOverlay(fs *pflag.FlagSet, g *globalFlags, rf *runFlags, roots []string) cfgpkg.Config {
	var over cfgpkg.Config
	if len(roots) > 0 {
		over.Inputs = roots
	}
	over.Ranges = strings.TrimSpace(rf.ranges)
	over.Logging.Level = strings.TrimSpace(g.logLevel)
	over.Logging.Dir = strings.TrimSpace(g.logDir)
	over.Components.Encoder = strings.TrimSpace(rf.encoder)
	over.Components.Writer = strings.TrimSpace(rf.writer)
	if fs.Changed("deconvolve") {
		over.Deconvolve = &rf.deconvolve
	}
	if fs.Changed("keep-intermediate") {
		over.KeepIntermediate = &rf.keepIntermediate
	}
	if fs.Changed("strict-length") {
		over.StrictLength = &rf.strictLength
	}
	if rf.db != "" {
		over.Components.Writer = "sqlite"
	}
	return over
}

// applyWriterFlags: --db 整体替换 writer options；--out 仅改写 output_dir，保留配置中的其他键。
func applyWriterFlags(cfg cfgpkg.Config, rf *runFlags) (cfgpkg.Config, error) {
	var err error
	switch {
	case rf.db != "":
		cfg.Options.Writer, err = cfgpkg.WithField(nil, "path", rf.db)
	case rf.out != "":
		cfg.Options.Writer, err = cfgpkg.WithField(cfg.Options.Writer, "output_dir", rf.out)
	}
	return cfg, err
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}
