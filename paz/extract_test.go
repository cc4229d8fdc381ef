package paz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// progressRecorder collects every (current, total) pair thread-safely.
type progressRecorder struct {
	mu       sync.Mutex
	currents []int
	totals   map[int]bool
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{totals: make(map[int]bool)}
}

func (p *progressRecorder) cb(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currents = append(p.currents, current)
	p.totals[total] = true
}

// batchFixture builds a volume with one shared cleartext payload and an
// in-memory index with n entries pointing at it.
func batchFixture(t *testing.T, n int) (*Archive, *Index) {
	t.Helper()
	dir := t.TempDir()

	var vol volumeBuilder
	e := vol.add([]byte("thirteen byte"), 13)
	vol.write(t, dir)

	idx := &Index{
		Version:     1,
		VolumeCount: 1,
		FolderPaths: []Folder{{Name: "data", Index: 0}},
	}
	for i := 0; i < n; i++ {
		idx.FileNames = append(idx.FileNames, fmt.Sprintf("file%04d.bin", i))
		rec := e
		rec.FileID = uint32(i)
		idx.Entries = append(idx.Entries, rec)
	}

	a, err := OpenArchive(dir, PadKey)
	require.NoError(t, err)
	return a, idx
}

// Every index in a 1000-entry batch is attempted, the callback fires exactly
// once per attempt with currents forming {1..1000}, and all writes land.
func TestExtractBatchProgressCardinality(t *testing.T) {
	const n = 1000
	a, idx := batchFixture(t, n)
	outDir := t.TempDir()

	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}

	rec := newProgressRecorder()
	got := a.ExtractBatch(outDir, indices, idx, ExtractOptions{Progress: rec.cb})
	require.Equal(t, n, got)

	require.Len(t, rec.currents, n)
	seen := make(map[int]bool, n)
	for _, c := range rec.currents {
		require.GreaterOrEqual(t, c, 1)
		require.LessOrEqual(t, c, n)
		require.False(t, seen[c], "current %d reported twice", c)
		seen[c] = true
	}
	require.Equal(t, map[int]bool{n: true}, rec.totals)

	for i := 0; i < n; i++ {
		data, err := os.ReadFile(filepath.Join(outDir, "data", fmt.Sprintf("file%04d.bin", i)))
		require.NoError(t, err)
		require.Equal(t, []byte("thirteen byte"), data)
	}
}

// Failed entries still count as attempts but not as successes.
func TestExtractBatchCountsFailures(t *testing.T) {
	a, idx := batchFixture(t, 4)
	outDir := t.TempDir()

	// two good entries, one beyond the table, one with a broken volume ref
	idx.Entries[3].Volume = 9
	indices := []uint32{0, 1, 5000, 3}

	rec := newProgressRecorder()
	got := a.ExtractBatch(outDir, indices, idx, ExtractOptions{Progress: rec.cb})
	require.Equal(t, 2, got)
	require.Len(t, rec.currents, 4)
}

func TestExtractBatchTrimsLeadingSlash(t *testing.T) {
	a, idx := batchFixture(t, 1)
	idx.FolderPaths[0].Name = "/escape"
	idx.FileNames[0] = "/out.bin"
	outDir := t.TempDir()

	got := a.ExtractBatch(outDir, []uint32{0}, idx, ExtractOptions{})
	require.Equal(t, 1, got)

	_, err := os.Stat(filepath.Join(outDir, "escape", "out.bin"))
	require.NoError(t, err)
}

func TestExtractBatchConvertMode(t *testing.T) {
	a, idx := batchFixture(t, 3)
	idx.FileNames = []string{"tex.dds", "script.luac", "plain.bin"}
	outDir := t.TempDir()

	opts := ExtractOptions{
		Mode: ModeConvert,
		ImageDecoder: func(b []byte) ([]byte, error) {
			return []byte("png-bytes"), nil
		},
		BytecodeDecompiler: func(b []byte) ([]byte, error) {
			return []byte("-- source"), nil
		},
	}
	got := a.ExtractBatch(outDir, []uint32{0, 1, 2}, idx, opts)
	require.Equal(t, 3, got)

	data, err := os.ReadFile(filepath.Join(outDir, "data", "tex.png"))
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)

	data, err = os.ReadFile(filepath.Join(outDir, "data", "script.lua"))
	require.NoError(t, err)
	require.Equal(t, []byte("-- source"), data)

	data, err = os.ReadFile(filepath.Join(outDir, "data", "plain.bin"))
	require.NoError(t, err)
	require.Equal(t, []byte("thirteen byte"), data)
}

// A failing converter falls back to the raw payload under the original name.
func TestExtractBatchConvertFallback(t *testing.T) {
	a, idx := batchFixture(t, 1)
	idx.FileNames = []string{"tex.dds"}
	outDir := t.TempDir()

	opts := ExtractOptions{
		Mode: ModeConvert,
		ImageDecoder: func(b []byte) ([]byte, error) {
			return nil, errors.New("unsupported pixel format")
		},
	}
	got := a.ExtractBatch(outDir, []uint32{0}, idx, opts)
	require.Equal(t, 1, got)

	data, err := os.ReadFile(filepath.Join(outDir, "data", "tex.dds"))
	require.NoError(t, err)
	require.Equal(t, []byte("thirteen byte"), data)

	_, err = os.Stat(filepath.Join(outDir, "data", "tex.png"))
	require.True(t, os.IsNotExist(err))
}

// ModeRaw never touches the converters.
func TestExtractBatchRawModeIgnoresConverters(t *testing.T) {
	a, idx := batchFixture(t, 1)
	idx.FileNames = []string{"tex.dds"}
	outDir := t.TempDir()

	opts := ExtractOptions{
		Mode: ModeRaw,
		ImageDecoder: func(b []byte) ([]byte, error) {
			t.Error("converter invoked in raw mode")
			return nil, nil
		},
	}
	got := a.ExtractBatch(outDir, []uint32{0}, idx, opts)
	require.Equal(t, 1, got)

	data, err := os.ReadFile(filepath.Join(outDir, "data", "tex.dds"))
	require.NoError(t, err)
	require.Equal(t, []byte("thirteen byte"), data)
}
