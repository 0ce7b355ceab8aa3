package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptconv/pkg/contract"
)

func write(t *testing.T, p, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
}

func collect(t *testing.T, r *FileSystem, roots ...string) ([]string, error) {
	t.Helper()
	var ids []string
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		ids = append(ids, string(id))
		return nil
	})
	return ids, err
}

func TestIterateSingleFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.pos")
	write(t, fp, "hello")
	var got []byte
	err := New(nil).Iterate(context.Background(), []string{fp}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		assert.Equal(t, contract.NormalizeFileID(fp), id)
		b, err := io.ReadAll(rc)
		got = b
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestIterateDirOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.pos"), "")
	write(t, filepath.Join(dir, "a.epos"), "")
	write(t, filepath.Join(dir, "z", "c.rrng"), "")
	write(t, filepath.Join(dir, "skip", "d.pos"), "")

	ids, err := collect(t, New(&Options{ExcludeDirNames: []string{"SKIP"}}), dir)
	require.NoError(t, err)
	var names []string
	for _, id := range ids {
		names = append(names, filepath.Base(id))
	}
	assert.Equal(t, []string{"c.rrng", "a.epos", "b.pos"}, names)
}

func TestIterateExtFilter(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.POS"), "")
	write(t, filepath.Join(dir, "notes.txt"), "")
	write(t, filepath.Join(dir, "r.rrng"), "")
	explicit := filepath.Join(dir, "notes.txt")

	ids, err := collect(t, New(&Options{Exts: []string{".pos", "rrng"}}), dir, explicit)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.True(t, strings.HasSuffix(ids[0], "a.POS"))
	assert.True(t, strings.HasSuffix(ids[1], "r.rrng"))
	assert.True(t, strings.HasSuffix(ids[2], "notes.txt"), "显式文件不过滤")
}

func TestIterateDashMix(t *testing.T) {
	_, err := collect(t, New(nil), "-", "a")
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func withStdin(t *testing.T, data string) {
	t.Helper()
	old := os.Stdin
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	os.Stdin = pr
	t.Cleanup(func() { os.Stdin = old; pr.Close() })
	go func() {
		pw.Write([]byte(data))
		pw.Close()
	}()
}

func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		withStdin(t, "hi")
		var data []byte
		err := New(&Options{StdinName: "stdin.pos"}).Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
			defer rc.Close()
			assert.Equal(t, contract.FileID("stdin.pos"), id)
			data, _ = io.ReadAll(rc)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hi", string(data))
	}
}

func TestIterateYieldErrorStops(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.pos"), "")
	write(t, filepath.Join(dir, "b.pos"), "")
	boom := errors.New("boom")
	calls := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(contract.FileID, io.ReadCloser) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIterateMissingRoot(t *testing.T) {
	_, err := collect(t, New(nil), filepath.Join(t.TempDir(), "none.pos"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIterateCtxCancel(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.pos")
	write(t, fp, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBufferedCloserDefault(t *testing.T) {
	bc := newBufferedCloser(io.NopCloser(strings.NewReader("")), 0)
	assert.NotNil(t, bc.Reader)
	assert.NoError(t, bc.Close())
}
