package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aptconv/internal/watch"
)

func newWatchCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	rf := &runFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "转换一次后持续监听输入变化并重新转换",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, g, rf, args, stderr)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watchLoop(ctx, s, debounce)
		},
	}
	bindRunFlags(cmd.Flags(), rf)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultPeriod, "去抖窗口")
	return cmd
}

// watchLoop 先全量转换一次；此后只转换变化的文件，范围文件变化时全量重跑。
// 首次转换失败直接返回；监听期间的失败只记录日志。
func watchLoop(ctx context.Context, s *session, debounce time.Duration) error {
	if err := s.convert(ctx, s.set); err != nil {
		return err
	}
	w, err := watch.New(s.set.Inputs, watch.Options{Period: debounce, RangesPath: s.set.RangesPath}, s.logger)
	if err != nil {
		return err
	}
	defer w.Close()
	s.logger.Start("watch", "watching")
	return w.Run(ctx, func(ctx context.Context, b watch.Batch) error {
		set := s.set
		if !b.Full {
			set.Inputs = underRoots(s.set.Inputs, b.Paths)
		}
		return s.convert(ctx, set)
	})
}

// underRoots 将监听得到的绝对路径映射回其所属输入根的原始写法（相对或绝对），
// 使重转换的工件 ID 与首次转换一致；不属于任何根的路径原样保留。
func underRoots(roots, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p
		for _, root := range roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(abs, p)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			if rel == "." {
				out[i] = root
			} else {
				out[i] = filepath.Join(root, rel)
			}
			break
		}
	}
	return out
}
