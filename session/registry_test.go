package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ytwritergod/archivetoziptest/staging"
	"github.com/ytwritergod/archivetoziptest/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, max int, lim Limits) (*Registry, *fakeClock) {
	t.Helper()
	area, err := staging.NewArea(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(Options{Area: area, MaxSessions: max, Limits: lim, Now: clock.Now}), clock
}

func upload(t *testing.T, s *Session, name, body string) types.StagedFile {
	t.Helper()
	if _, _, err := s.Apply(UploadBegin{}, time.Now()); err != nil {
		t.Fatalf("UploadBegin failed: %v", err)
	}
	f, err := s.Dir.Stage(context.Background(), name, strings.NewReader(body), 0)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if _, _, err := s.Apply(UploadEnd{File: f}, time.Now()); err != nil {
		t.Fatalf("UploadEnd failed: %v", err)
	}
	return f
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})

	s, created, err := r.GetOrCreate(7)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created || s.State() != Idle || s.UserID != 7 || s.ID == "" {
		t.Errorf("session = %+v, created = %v", s, created)
	}
	again, created, err := r.GetOrCreate(7)
	if err != nil {
		t.Fatal(err)
	}
	if created || again != s {
		t.Error("second GetOrCreate did not return the existing session")
	}
	if r.Get(7) != s || r.Get(8) != nil {
		t.Error("Get mismatch")
	}
	if r.Current(7) != s.Generation || r.Current(8) != 0 {
		t.Error("Current mismatch")
	}
}

func TestRegistry_MaxSessions(t *testing.T) {
	r, _ := newTestRegistry(t, 2, Limits{})
	for _, id := range []int64{1, 2} {
		if _, _, err := r.GetOrCreate(id); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := r.GetOrCreate(3); !errors.Is(err, types.ErrResourceLimit) {
		t.Fatalf("error = %v, want ErrResourceLimit", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	// Existing users are unaffected by the cap.
	if _, _, err := r.GetOrCreate(1); err != nil {
		t.Errorf("existing user rejected: %v", err)
	}
}

func TestRegistry_DestroyCleansStaging(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	s, _, err := r.GetOrCreate(1)
	if err != nil {
		t.Fatal(err)
	}
	f := upload(t, s, "a.txt", "hello")

	removed, err := r.Destroy(1)
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if removed != s || s.State() != Destroyed {
		t.Errorf("removed = %v, state = %s", removed, s.State())
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Errorf("staged file survived: %v", err)
	}
	if _, err := os.Stat(s.Dir.Path()); !os.IsNotExist(err) {
		t.Errorf("staging dir survived: %v", err)
	}
	if r.Get(1) != nil {
		t.Error("session still registered")
	}
	if removed, err := r.Destroy(1); removed != nil || err != nil {
		t.Errorf("Destroy of missing = %v, %v", removed, err)
	}
}

func TestRegistry_Restart(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	old, _, _ := r.GetOrCreate(1)
	upload(t, old, "a.txt", "hello")

	s, retired, err := r.Restart(1)
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if retired != old || old.State() != Destroyed {
		t.Errorf("old session not destroyed: %s", old.State())
	}
	if s.Generation <= old.Generation {
		t.Errorf("generation %d not above %d", s.Generation, old.Generation)
	}
	if _, err := os.Stat(old.Dir.Path()); !os.IsNotExist(err) {
		t.Errorf("old staging survived: %v", err)
	}
	if len(s.Snapshot().Files) != 0 {
		t.Error("new session inherited files")
	}
}

func TestRegistry_RestartWhileFinalizing(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	old, _, _ := r.GetOrCreate(1)
	upload(t, old, "a.txt", "hello")
	for _, ev := range []Event{Done{}, FormatChosen{Token: "zip"}, Text{Value: "none"}, Text{Value: "out"}} {
		if _, _, err := old.Apply(ev, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if old.State() != Finalizing {
		t.Fatalf("State = %s, want finalizing", old.State())
	}

	s, _, err := r.Restart(1)
	if err != nil {
		t.Fatal(err)
	}
	if !old.Superseded() {
		t.Error("finalizing session not marked superseded")
	}
	// The pipeline still owns the directory.
	if _, err := os.Stat(old.Dir.Path()); err != nil {
		t.Errorf("finalizing staging removed early: %v", err)
	}
	if r.Current(1) != s.Generation {
		t.Error("Current does not point at the new session")
	}

	// The old pipeline finishing must not evict the new session.
	if err := r.Release(old); err != nil {
		t.Fatal(err)
	}
	if r.Get(1) != s {
		t.Error("Release evicted the newer session")
	}
	if _, err := os.Stat(old.Dir.Path()); !os.IsNotExist(err) {
		t.Errorf("old staging survived Release: %v", err)
	}
	if _, err := os.Stat(s.Dir.Path()); err != nil {
		t.Errorf("new staging removed: %v", err)
	}
}

func TestRegistry_Expire(t *testing.T) {
	r, clock := newTestRegistry(t, 0, Limits{})
	idle, _, _ := r.GetOrCreate(1)
	busy, _, _ := r.GetOrCreate(2)
	if _, _, err := idle.Apply(Start{}, clock.Now()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := busy.Apply(UploadBegin{}, clock.Now()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	fresh, _, _ := r.GetOrCreate(3)

	expired, err := r.Expire(30 * time.Minute)
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if len(expired) != 1 || expired[0] != idle {
		t.Fatalf("expired = %v, want only user 1", expired)
	}
	if r.Get(1) != nil || r.Get(2) != busy || r.Get(3) != fresh {
		t.Error("wrong sessions survived")
	}
	if _, err := os.Stat(idle.Dir.Path()); !os.IsNotExist(err) {
		t.Errorf("expired staging survived: %v", err)
	}
}

func TestRegistry_Close(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	a, _, _ := r.GetOrCreate(1)
	b, _, _ := r.GetOrCreate(2)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	for _, s := range []*Session{a, b} {
		if _, err := os.Stat(s.Dir.Path()); !os.IsNotExist(err) {
			t.Errorf("staging survived Close: %v", err)
		}
	}
}

func TestRegistry_Sessions(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	b, _, _ := r.GetOrCreate(2)
	if _, _, err := r.GetOrCreate(1); err != nil {
		t.Fatal(err)
	}
	upload(t, b, "x.bin", "12345")

	infos := r.Sessions()
	if len(infos) != 2 || infos[0].UserID != 1 || infos[1].UserID != 2 {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[1].Files != 1 || infos[1].Bytes != 5 || infos[1].State != "collecting_files" {
		t.Errorf("info = %+v", infos[1])
	}
}

func TestRegistry_ConcurrentUsersIsolated(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})

	const users, files = 8, 10
	var wg sync.WaitGroup
	for u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _, err := r.GetOrCreate(int64(u + 1))
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			for i := range files {
				if _, _, err := s.Apply(UploadBegin{}, time.Now()); err != nil {
					t.Errorf("UploadBegin failed: %v", err)
					return
				}
				f, err := s.Dir.Stage(context.Background(), fmt.Sprintf("f%d.txt", i),
					strings.NewReader(fmt.Sprintf("user %d file %d", u+1, i)), 0)
				if err != nil {
					t.Errorf("Stage failed: %v", err)
					return
				}
				if _, _, err := s.Apply(UploadEnd{File: f}, time.Now()); err != nil {
					t.Errorf("UploadEnd failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for u := int64(1); u <= users; u++ {
		s := r.Get(u)
		d := s.Snapshot()
		if len(d.Files) != files {
			t.Errorf("user %d: files = %d, want %d", u, len(d.Files), files)
		}
		for _, f := range d.Files {
			if filepath.Dir(filepath.Dir(f.Path)) != s.Dir.Path() {
				t.Errorf("user %d: file %s outside own staging dir", u, f.Path)
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), fmt.Sprintf("user %d ", u)) {
				t.Errorf("user %d: foreign content %q", u, data)
			}
		}
	}
}

func TestSession_ConcurrentDoneAndUploadsAreOrdered(t *testing.T) {
	r, _ := newTestRegistry(t, 0, Limits{})
	s, _, _ := r.GetOrCreate(1)
	upload(t, s, "first.txt", "x")

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := s.Apply(UploadBegin{}, time.Now()); err != nil {
				results <- nil
				return
			}
			f, err := s.Dir.Stage(context.Background(), fmt.Sprintf("%d.txt", i), strings.NewReader("y"), 0)
			if err != nil {
				results <- err
				return
			}
			if _, _, err := s.Apply(UploadEnd{File: f}, time.Now()); err != nil {
				// Collection closed between begin and end cannot happen:
				// Done refuses while uploads are pending.
				results <- fmt.Errorf("upload lost after reservation: %w", err)
				return
			}
			results <- nil
		}()
		go func() {
			defer wg.Done()
			_, _, _ = s.Apply(Done{}, time.Now())
			results <- nil
		}()
	}
	wg.Wait()
	close(results)
	for err := range results {
		if err != nil {
			t.Error(err)
		}
	}

	d := s.Snapshot()
	if d.Pending != 0 {
		t.Errorf("Pending = %d, want 0", d.Pending)
	}
	seen := make(map[string]bool)
	for _, f := range d.Files {
		if seen[f.Path] {
			t.Errorf("duplicate staged path %s", f.Path)
		}
		seen[f.Path] = true
	}
}
