package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ytwritergod/archivetoziptest/types"
)

func newTestArea(t *testing.T) *Area {
	t.Helper()
	a, err := NewArea(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatalf("NewArea failed: %v", err)
	}
	return a
}

func openDir(t *testing.T, a *Area, user int64, gen uint64) *Dir {
	t.Helper()
	d, err := a.Open(Manifest{
		SessionID:  fmt.Sprintf("s-%d-%d", user, gen),
		UserID:     user,
		Generation: gen,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

func TestOpen_Layout(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 42, 7)

	want := filepath.Join(a.Root(), "42", "7")
	if d.Path() != want {
		t.Errorf("Path = %q, want %q", d.Path(), want)
	}
	for _, sub := range []string{filesDirName, outDirName, manifestName} {
		if _, err := os.Stat(filepath.Join(want, sub)); err != nil {
			t.Errorf("missing %s: %v", sub, err)
		}
	}

	m, err := readManifest(filepath.Join(want, manifestName))
	if err != nil {
		t.Fatalf("readManifest failed: %v", err)
	}
	if m.SessionID != "s-42-7" || m.UserID != 42 || m.Generation != 7 {
		t.Errorf("manifest = %+v", m)
	}
	if m.Version != types.Version {
		t.Errorf("manifest version = %q, want %q", m.Version, types.Version)
	}
}

func TestOpen_ReplacesStaleDir(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)
	if _, err := d.Stage(context.Background(), "old.txt", strings.NewReader("x"), 0); err != nil {
		t.Fatal(err)
	}

	d2 := openDir(t, a, 1, 1)
	entries, err := os.ReadDir(filepath.Join(d2.Path(), filesDirName))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("stale files survived reopen: %d", len(entries))
	}
}

func TestStage_WritesFile(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	f, err := d.Stage(context.Background(), "report.pdf", strings.NewReader("pdf bytes"), 0)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if f.DisplayName != "report.pdf" || f.Name != "report.pdf" || f.Size != 9 {
		t.Errorf("staged = %+v", f)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestStage_DeduplicatesNames(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)
	ctx := context.Background()

	var names []string
	for _, display := range []string{"a.txt", "a.txt", "dir/a.txt", "a.txt.partial"} {
		f, err := d.Stage(ctx, display, strings.NewReader(display), 0)
		if err != nil {
			t.Fatalf("Stage(%q) failed: %v", display, err)
		}
		names = append(names, f.Name)
	}

	want := []string{"a.txt", "a (1).txt", "a (2).txt", "a.txt (1).partial"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestStage_ConcurrentUploadsGetDistinctNames(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]bool)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := bytes.Repeat([]byte{byte(i)}, 4096)
			f, err := d.Stage(context.Background(), "photo.jpg", bytes.NewReader(body), 0)
			if err != nil {
				t.Errorf("Stage failed: %v", err)
				return
			}
			mu.Lock()
			names[f.Name] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(names) != n {
		t.Errorf("distinct names = %d, want %d", len(names), n)
	}
}

func TestStage_SizeLimit(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	_, err := d.Stage(context.Background(), "big.bin", strings.NewReader("0123456789"), 5)
	if !errors.Is(err, types.ErrResourceLimit) {
		t.Fatalf("error = %v, want ErrResourceLimit", err)
	}
	entries, _ := os.ReadDir(filepath.Join(d.Path(), filesDirName))
	if len(entries) != 0 {
		t.Errorf("rejected upload left %d file(s)", len(entries))
	}

	// The name is free again.
	f, err := d.Stage(context.Background(), "big.bin", strings.NewReader("01234"), 5)
	if err != nil {
		t.Fatalf("Stage at limit failed: %v", err)
	}
	if f.Name != "big.bin" {
		t.Errorf("Name = %q, want big.bin", f.Name)
	}
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

func TestStage_FailedDownloadLeavesNothing(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	if _, err := d.Stage(context.Background(), "x.bin", &failingReader{after: 100}, 0); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(filepath.Join(d.Path(), filesDirName))
	if len(entries) != 0 {
		t.Errorf("failed upload left %d file(s)", len(entries))
	}
}

func TestStage_CanceledContext(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Stage(ctx, "x.bin", strings.NewReader("data"), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDiscard(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)
	ctx := context.Background()

	f, err := d.Stage(ctx, "a.txt", strings.NewReader("a"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Discard(f); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}
	again, err := d.Stage(ctx, "a.txt", strings.NewReader("a"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != "a.txt" {
		t.Errorf("Name = %q, want a.txt", again.Name)
	}
}

func TestDestroy(t *testing.T) {
	a := newTestArea(t)
	d1 := openDir(t, a, 5, 1)
	d2 := openDir(t, a, 5, 2)

	if err := d1.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(d1.Path()); !os.IsNotExist(err) {
		t.Errorf("dir still exists: %v", err)
	}
	if _, err := os.Stat(d2.Path()); err != nil {
		t.Errorf("sibling generation removed: %v", err)
	}
	if err := d1.Destroy(); err != nil {
		t.Errorf("second Destroy failed: %v", err)
	}
	if _, err := d1.Stage(context.Background(), "a", strings.NewReader("a"), 0); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Stage after Destroy = %v, want ErrDestroyed", err)
	}

	if err := d2.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(a.Root(), "5")); !os.IsNotExist(err) {
		t.Errorf("empty user dir not removed: %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	a := newTestArea(t)
	d := openDir(t, a, 1, 1)

	got := d.OutputPath("../escape.zip")
	want := filepath.Join(d.Path(), outDirName, "escape.zip")
	if got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newTestArea(t)
	d1 := openDir(t, a, 1, 1)
	d2 := openDir(t, a, 2, 2)
	ctx := context.Background()

	f1, err := d1.Stage(ctx, "same.txt", strings.NewReader("one"), 0)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := d2.Stage(ctx, "same.txt", strings.NewReader("two"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if f1.Path == f2.Path {
		t.Fatal("sessions share a path")
	}
	if err := d1.Destroy(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(f2.Path)
	if err != nil || string(data) != "two" {
		t.Errorf("other session affected: %q, %v", data, err)
	}
}
