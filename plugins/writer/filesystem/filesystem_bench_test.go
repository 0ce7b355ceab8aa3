package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"aptconv/pkg/contract"
)

// BenchmarkWrite 测量不同工件尺寸下的写入性能。
func BenchmarkWrite(b *testing.B) {
	for _, sz := range []int{16 * 1024, 16 * 1024 * 1024} {
		b.Run(fmt.Sprintf("size=%d", sz), func(b *testing.B) {
			data := bytes.Repeat([]byte("1.5,2.5,3.5,27\n"), sz/15)
			w, err := New(&Options{OutputDir: b.TempDir()})
			if err != nil {
				b.Fatalf("new writer: %v", err)
			}
			id := contract.ArtifactID("bench.pos.csv")
			ctx := context.Background()
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Write(ctx, id, bytes.NewReader(data)); err != nil {
					b.Fatalf("write: %v", err)
				}
			}
		})
	}
}
