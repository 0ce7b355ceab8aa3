package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptconv/internal/diag"
	"aptconv/pkg/contract"
)

type recorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recorder) handle(_ context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recorder) snapshot() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

func start(t *testing.T, w *Watcher, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
}

func TestNewRequiresRoots(t *testing.T) {
	_, err := New(nil, Options{}, diag.NopLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "nope")}, Options{}, diag.NopLogger())
	require.Error(t, err)
}

func TestDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, Options{Period: 50 * time.Millisecond}, diag.NopLogger())
	require.NoError(t, err)
	rec := &recorder{}
	start(t, w, rec.handle)

	a := filepath.Join(dir, "a.pos")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(a, []byte{0, 0, 0, byte(i)}, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{a}, got[0].Paths)
	assert.False(t, got[0].Full)
}

func TestRangesChangeIsFull(t *testing.T) {
	dir := t.TempDir()
	rdir := t.TempDir()
	rp := filepath.Join(rdir, "r.rrng")
	require.NoError(t, os.WriteFile(rp, []byte("Ion1=Fe\n"), 0o644))
	w, err := New([]string{dir}, Options{Period: 20 * time.Millisecond, RangesPath: rp}, diag.NopLogger())
	require.NoError(t, err)
	rec := &recorder{}
	start(t, w, rec.handle)

	require.NoError(t, os.WriteFile(rp, []byte("Ion1=O\n"), 0o644))
	require.Eventually(t, func() bool {
		b := rec.snapshot()
		return len(b) > 0 && b[len(b)-1].Full
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFileRootFiltersSiblings(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x.epos")
	require.NoError(t, os.WriteFile(target, nil, 0o644))
	w, err := New([]string{target}, Options{Period: 20 * time.Millisecond}, diag.NopLogger())
	require.NoError(t, err)
	rec := &recorder{}
	start(t, w, rec.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.epos"), []byte{1}, 0o644))
	require.NoError(t, os.WriteFile(target, []byte{1}, 0o644))
	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	for _, b := range rec.snapshot() {
		assert.Equal(t, []string{target}, b.Paths)
	}
}

func TestHandlerErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, Options{Period: 20 * time.Millisecond}, diag.NopLogger())
	require.NoError(t, err)
	var mu sync.Mutex
	calls := 0
	start(t, w, func(context.Context, Batch) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	})
	count := func() int { mu.Lock(); defer mu.Unlock(); return calls }

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pos"), []byte{1}, 0o644))
	require.Eventually(t, func() bool { return count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pos"), []byte{1}, 0o644))
	require.Eventually(t, func() bool { return count() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestRelevant(t *testing.T) {
	w := &Watcher{
		exts:  map[string]struct{}{".pos": {}},
		files: map[string]struct{}{"/x/only.txt": {}},
		dirs:  []string{"/data"},
	}
	assert.True(t, w.relevant("/data/a.pos"))
	assert.True(t, w.relevant("/data/sub/A.POS"))
	assert.False(t, w.relevant("/data/a.csv"))
	assert.False(t, w.relevant("/database/a.pos"))
	assert.True(t, w.relevant("/x/only.txt"))
}
