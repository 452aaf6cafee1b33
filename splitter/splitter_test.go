package splitter

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

func writeSource(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func partPaths(parts []types.Part) []string {
	paths := make([]string, len(parts))
	for i, p := range parts {
		paths[i] = p.Path
	}
	return paths
}

func TestSplit_RoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := range 40 {
		size := rng.IntN(5000) + 1
		limit := int64(rng.IntN(700) + 1)
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(rng.UintN(256))
		}

		src := writeSource(t, data)
		parts, err := Split(src, limit)
		if err != nil {
			t.Fatalf("case %d: Split: %v", i, err)
		}

		if want := Count(int64(size), limit); len(parts) != want {
			t.Fatalf("case %d: got %d parts, want %d", i, len(parts), want)
		}
		for k, p := range parts {
			if p.Seq != k+1 {
				t.Errorf("case %d: part %d has seq %d", i, k, p.Seq)
			}
			if p.Size > limit {
				t.Errorf("case %d: part %d size %d exceeds limit %d", i, p.Seq, p.Size, limit)
			}
			if k < len(parts)-1 && p.Size != limit {
				t.Errorf("case %d: non-final part %d size %d, want %d", i, p.Seq, p.Size, limit)
			}
		}

		var buf bytes.Buffer
		if err := Reassemble(&buf, partPaths(parts)); err != nil {
			t.Fatalf("case %d: Reassemble: %v", i, err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Fatalf("case %d: reassembled bytes differ (size %d, limit %d)", i, size, limit)
		}
	}
}

func TestSplit_OneAndAHalfLimit(t *testing.T) {
	const limit = 1024
	data := bytes.Repeat([]byte("ab"), limit*3/4) // 1.5 * limit
	src := writeSource(t, data)

	parts, err := Split(src, limit)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].Size != limit || parts[1].Size != limit/2 {
		t.Errorf("sizes = %d, %d; want %d, %d", parts[0].Size, parts[1].Size, limit, limit/2)
	}
	if filepath.Base(parts[0].Path) != "bundle.zip.part001" {
		t.Errorf("part 1 name = %s", filepath.Base(parts[0].Path))
	}
	if filepath.Base(parts[1].Path) != "bundle.zip.part002" {
		t.Errorf("part 2 name = %s", filepath.Base(parts[1].Path))
	}

	joined := filepath.Join(t.TempDir(), "joined.zip")
	if err := Join(joined, partPaths(parts)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	got, _ := os.ReadFile(joined)
	if !bytes.Equal(got, data) {
		t.Error("joined artifact differs from source")
	}
}

func TestSplit_EmptySourceYieldsOneEmptyPart(t *testing.T) {
	src := writeSource(t, nil)

	parts, err := Split(src, 10)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if parts[0].Size != 0 {
		t.Errorf("part size = %d, want 0", parts[0].Size)
	}
	info, err := os.Stat(parts[0].Path)
	if err != nil {
		t.Fatalf("stat part: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("part file size = %d", info.Size())
	}
}

func TestSplit_ExactMultiple(t *testing.T) {
	src := writeSource(t, bytes.Repeat([]byte{1}, 300))
	parts, err := Split(src, 100)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	for _, p := range parts {
		if p.Size != 100 {
			t.Errorf("part %d size %d", p.Seq, p.Size)
		}
	}
}

func TestSplit_SuffixWidthKeepsLexicalOrder(t *testing.T) {
	data := make([]byte, 1200)
	for i := range data {
		data[i] = byte(i)
	}
	src := writeSource(t, data)

	parts, err := Split(src, 1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 1200 {
		t.Fatalf("got %d parts", len(parts))
	}
	if !strings.HasSuffix(parts[0].Path, ".part0001") {
		t.Errorf("first part = %s, want 4-digit suffix", filepath.Base(parts[0].Path))
	}

	shuffled := partPaths(parts)
	rand.New(rand.NewPCG(1, 2)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	SortParts(shuffled)
	if !sort.StringsAreSorted(shuffled) {
		t.Fatal("SortParts did not sort")
	}

	var buf bytes.Buffer
	if err := Reassemble(&buf, shuffled); err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("lexically sorted parts do not reassemble to the source")
	}
}

func TestSplitter_LazyAndNotRestartable(t *testing.T) {
	src := writeSource(t, bytes.Repeat([]byte("x"), 25))

	s, err := New(src, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer iox.DiscardClose(s)

	if s.Total() != 3 {
		t.Fatalf("Total = %d, want 3", s.Total())
	}

	first, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// Only the first part exists before the second Next call.
	if _, err := os.Stat(filepath.Join(filepath.Dir(src), PartName("bundle.zip", 2, 3))); !os.IsNotExist(err) {
		t.Error("part 2 written before it was requested")
	}
	if first.Seq != 1 || first.Total != 3 {
		t.Errorf("first = %+v", first)
	}

	for range 2 {
		if _, err := s.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	for range 2 {
		if _, err := s.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF after last part, got %v", err)
		}
	}
}

func TestSplitter_ShrunkSourceLeavesNoPartialPart(t *testing.T) {
	src := writeSource(t, bytes.Repeat([]byte("y"), 30))

	s, err := New(src, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer iox.DiscardClose(s)

	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if err := os.Truncate(src, 25); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	_, err = s.Next()
	if !errors.Is(err, types.ErrSplit) {
		t.Fatalf("expected ErrSplit, got %v", err)
	}
	// Sticky.
	if _, again := s.Next(); !errors.Is(again, types.ErrSplit) {
		t.Errorf("expected sticky ErrSplit, got %v", again)
	}

	dir := filepath.Dir(src)
	if _, err := os.Stat(filepath.Join(dir, PartName("bundle.zip", 2, 3))); !os.IsNotExist(err) {
		t.Error("failed part visible under its final name")
	}
	if _, err := os.Stat(filepath.Join(dir, PartName("bundle.zip", 2, 3)+iox.PendingSuffix)); !os.IsNotExist(err) {
		t.Error("temporary part left behind")
	}
}

func TestSplit_FailureRemovesEarlierParts(t *testing.T) {
	src := writeSource(t, bytes.Repeat([]byte("z"), 10))
	// A directory squatting on part 2's name makes its commit fail.
	blocker := filepath.Join(filepath.Dir(src), PartName("bundle.zip", 2, 3))
	if err := os.MkdirAll(filepath.Join(blocker, "x"), 0o700); err != nil {
		t.Fatal(err)
	}

	if _, err := Split(src, 5); !errors.Is(err, types.ErrSplit) {
		t.Fatalf("expected ErrSplit, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(src), PartName("bundle.zip", 1, 3))); !os.IsNotExist(err) {
		t.Error("part 1 left behind after failed split")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), 10); !errors.Is(err, types.ErrSplit) {
		t.Errorf("missing source: expected ErrSplit, got %v", err)
	}
	src := writeSource(t, []byte("data"))
	if _, err := New(src, 0); !errors.Is(err, types.ErrSplit) {
		t.Errorf("zero limit: expected ErrSplit, got %v", err)
	}
	if _, err := New(t.TempDir(), 10); !errors.Is(err, types.ErrSplit) {
		t.Errorf("directory source: expected ErrSplit, got %v", err)
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		size, limit int64
		want        int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{3 * DefaultLimit / 2, DefaultLimit, 2},
	}
	for _, tt := range tests {
		if got := Count(tt.size, tt.limit); got != tt.want {
			t.Errorf("Count(%d, %d) = %d, want %d", tt.size, tt.limit, got, tt.want)
		}
	}
}

func TestPartName(t *testing.T) {
	if got := PartName("a.7z", 7, SuffixWidth(12)); got != "a.7z.part007" {
		t.Errorf("PartName = %q", got)
	}
	if got := PartName("a.7z", 12, SuffixWidth(1000)); got != "a.7z.part0012" {
		t.Errorf("PartName = %q", got)
	}
}
