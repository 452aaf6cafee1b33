// Package staging owns the on-disk workspace of each session.
//
// Layout under the root:
//
//	<root>/<user_id>/<generation>/.session   msgpack manifest
//	<root>/<user_id>/<generation>/files/     uploaded files, by sanitized display name
//	<root>/<user_id>/<generation>/out/       archive and its parts
//
// A Dir is handed to exactly one session; nothing else reads or writes it.
// Files appear under their final names only once fully written.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

const (
	filesDirName = "files"
	outDirName   = "out"
	manifestName = ".session"
)

// Manifest identifies the session that owns a staging directory.
// It is what lets List and Sweep make sense of leftovers after a crash.
type Manifest struct {
	SessionID  string    `msgpack:"session_id" json:"session_id"`
	UserID     int64     `msgpack:"user_id" json:"user_id"`
	Generation uint64    `msgpack:"generation" json:"generation"`
	CreatedAt  time.Time `msgpack:"created_at" json:"created_at"`
	Version    string    `msgpack:"version" json:"version"`
}

// Area is the staging root shared by all sessions.
type Area struct {
	root string
}

// NewArea creates (if needed) and returns the staging root.
func NewArea(root string) (*Area, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Area{root: abs}, nil
}

// Root returns the absolute staging root.
func (a *Area) Root() string { return a.root }

// Open creates the directory for a new session.
// A leftover directory with the same identity is stale and is replaced.
func (a *Area) Open(m Manifest) (*Dir, error) {
	if m.Version == "" {
		m.Version = types.Version
	}
	path := a.sessionPath(m.UserID, m.Generation)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clear stale staging dir: %w", err)
	}

	d := &Dir{
		path:     path,
		files:    filepath.Join(path, filesDirName),
		out:      filepath.Join(path, outDirName),
		manifest: m,
		reserved: make(map[string]struct{}),
	}
	for _, dir := range []string{d.files, d.out} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			_ = os.RemoveAll(path)
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}
	if err := writeManifest(filepath.Join(path, manifestName), m); err != nil {
		_ = os.RemoveAll(path)
		return nil, err
	}
	return d, nil
}

func (a *Area) userPath(userID int64) string {
	return filepath.Join(a.root, strconv.FormatInt(userID, 10))
}

func (a *Area) sessionPath(userID int64, generation uint64) string {
	return filepath.Join(a.userPath(userID), strconv.FormatUint(generation, 10))
}

// Dir is one session's private staging directory.
// Safe for concurrent Stage calls from parallel uploads.
type Dir struct {
	path     string
	files    string
	out      string
	manifest Manifest

	mu        sync.Mutex
	reserved  map[string]struct{} // committed and in-flight file names
	destroyed bool
}

// Path returns the session directory.
func (d *Dir) Path() string { return d.path }

// Manifest returns the identity written at creation.
func (d *Dir) Manifest() Manifest { return d.manifest }

// ErrDestroyed is returned when staging into a destroyed directory.
var ErrDestroyed = errors.New("staging directory destroyed")

// Stage streams r into the session under a sanitized, collision-free version
// of displayName. maxBytes > 0 caps the file size.
func (d *Dir) Stage(ctx context.Context, displayName string, r io.Reader, maxBytes int64) (types.StagedFile, error) {
	name, err := d.reserve(SanitizeName(displayName))
	if err != nil {
		return types.StagedFile{}, err
	}

	final := filepath.Join(d.files, name)
	p, err := iox.CreatePending(final)
	if err != nil {
		d.release(name)
		return types.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}

	src := iox.ContextReader(ctx, r)
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(p, src)
	if err != nil {
		iox.DiscardErr(p.Abort)
		d.release(name)
		return types.StagedFile{}, fmt.Errorf("download %s: %w", displayName, err)
	}
	if maxBytes > 0 && n > maxBytes {
		iox.DiscardErr(p.Abort)
		d.release(name)
		return types.StagedFile{}, types.ResourceLimitError(
			fmt.Sprintf("%s is larger than the %d byte limit", displayName, maxBytes))
	}
	if err := p.Commit(); err != nil {
		d.release(name)
		return types.StagedFile{}, fmt.Errorf("stage %s: %w", name, err)
	}

	return types.StagedFile{
		DisplayName: displayName,
		Name:        name,
		Path:        final,
		Size:        n,
	}, nil
}

// Discard removes a staged file and frees its name.
func (d *Dir) Discard(f types.StagedFile) error {
	d.release(f.Name)
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// OutputPath returns where an output artifact named fileName lives.
func (d *Dir) OutputPath(fileName string) string {
	return filepath.Join(d.out, filepath.Base(fileName))
}

// Destroy removes the directory and everything in it. Idempotent.
// The per-user parent is removed too once it is empty.
func (d *Dir) Destroy() error {
	d.mu.Lock()
	d.destroyed = true
	d.reserved = make(map[string]struct{})
	d.mu.Unlock()

	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("destroy staging dir: %w", err)
	}
	// Fails harmlessly while another generation of this user still exists.
	_ = os.Remove(filepath.Dir(d.path))
	return nil
}

func (d *Dir) reserve(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return "", ErrDestroyed
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; d.taken(candidate); i++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	d.reserved[candidate] = struct{}{}
	return candidate, nil
}

// taken also guards the temporary sibling every in-flight name owns.
func (d *Dir) taken(name string) bool {
	if _, ok := d.reserved[name]; ok {
		return true
	}
	if _, ok := d.reserved[name+iox.PendingSuffix]; ok {
		return true
	}
	if base, ok := strings.CutSuffix(name, iox.PendingSuffix); ok {
		if _, clash := d.reserved[base]; clash {
			return true
		}
	}
	return false
}

func (d *Dir) release(name string) {
	d.mu.Lock()
	delete(d.reserved, name)
	d.mu.Unlock()
}

func writeManifest(path string, m Manifest) error {
	p, err := iox.CreatePending(path)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := msgpack.NewEncoder(p).Encode(&m); err != nil {
		iox.DiscardErr(p.Abort)
		return fmt.Errorf("encode manifest: %w", err)
	}
	return p.Commit()
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer iox.DiscardClose(f)
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
