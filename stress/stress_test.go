package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "aptconv/internal/config"
	"aptconv/internal/diag"
	"aptconv/internal/pipeline"
	"aptconv/pkg/contract"
	"aptconv/plugins/decoder/pos"
)

const rangesText = "Ion1=Fe\nIon2=O\n" +
	"Range1=27.5 28.5 Vol:0.01 Fe:1 Color:FF0000\n" +
	"Range2=15.5 16.5 Vol:0.01 O:1 Color:0000FF\n" +
	"Range3=35.5 36.5 Vol:0.02 Fe:1 O:1 Color:00FF00\n"

// synth 生成 n 条在三个峰之间循环的记录。
func synth(n int) []byte {
	peaks := []float64{28, 16, 36, 50}
	recs := make([]contract.PositionRecord, n)
	for i := range recs {
		f := float64(i)
		recs[i] = contract.PositionRecord{X: math.Sin(f), Y: math.Cos(f), Z: f / 1000, Da: peaks[i%len(peaks)]}
	}
	return pos.Encode(recs)
}

func config(input, rng, writer, encoder, out string) cfgpkg.Config {
	yes := true
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Ranges = rng
	cfg.Deconvolve = &yes
	cfg.Logging.Level = "error"
	cfg.Components.Writer = writer
	cfg.Components.Encoder = encoder
	cfg.Options.Encoder = nil
	if writer == "sqlite" {
		cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"path":%q}`, filepath.Join(out, "apt.db")))
	} else {
		cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, out))
	}
	return cfg
}

func runOnce(cfg cfgpkg.Config) error {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()
	return pipeline.Run(context.Background(), comp, set, diag.NopLogger())
}

// TestStress 在不同记录数与输出端下运行完整流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	sinks := []struct{ writer, encoder string }{
		{"fs", "csv"},
		{"fs", "jsonl"},
		{"sqlite", "csv"},
	}
	sizes := []int{1_000, 100_000}
	for _, n := range sizes {
		dir := t.TempDir()
		in := filepath.Join(dir, "synthetic.pos")
		rng := filepath.Join(dir, "r.rrng")
		require.NoError(t, os.WriteFile(in, synth(n), 0o644))
		require.NoError(t, os.WriteFile(rng, []byte(rangesText), 0o644))

		for _, s := range sinks {
			t.Run(fmt.Sprintf("%s_%s_%d", s.writer, s.encoder, n), func(t *testing.T) {
				const runs = 3
				latencies := make([]time.Duration, 0, runs)
				for i := 0; i < runs; i++ {
					cfg := config(in, rng, s.writer, s.encoder, t.TempDir())
					start := time.Now()
					require.NoError(t, runOnce(cfg), "run %d", i)
					latencies = append(latencies, time.Since(start))
				}
				sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
				var total time.Duration
				for _, d := range latencies {
					total += d
				}
				avg := total / time.Duration(len(latencies))
				idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
				if idx < 0 {
					idx = 0
				}
				p95 := latencies[idx]
				t.Logf("记录%d 平均%v 95%%延迟%v 吞吐%.0f 条/秒", n, avg, p95, float64(n)/avg.Seconds())
			})
		}
	}
}
