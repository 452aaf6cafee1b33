package iox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// PendingSuffix marks files that are still being written.
// Downstream consumers must never pick up a path with this suffix.
const PendingSuffix = ".partial"

// PendingFile writes to a temporary sibling of its final path and only
// makes the final path visible on Commit. Abort removes the temporary file.
// Commit and Abort are idempotent; after either, the other is a no-op.
type PendingFile struct {
	final string
	tmp   string
	f     *os.File
	done  bool
}

// CreatePending opens a new pending file for final.
// Any stale temporary file from an earlier crash is truncated.
func CreatePending(final string) (*PendingFile, error) {
	tmp := final + PendingSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}
	return &PendingFile{final: final, tmp: tmp, f: f}, nil
}

// ReservePending returns a pending handle without opening the file.
// Used for writers that insist on creating the file themselves (external tools).
func ReservePending(final string) *PendingFile {
	return &PendingFile{final: final, tmp: final + PendingSuffix}
}

// Write implements io.Writer on the temporary file.
func (p *PendingFile) Write(b []byte) (int, error) {
	if p.f == nil {
		return 0, errors.New("pending file not open")
	}
	return p.f.Write(b)
}

// TempPath is the path being written.
func (p *PendingFile) TempPath() string { return p.tmp }

// FinalPath is the path made visible on Commit.
func (p *PendingFile) FinalPath() string { return p.final }

// Commit syncs, closes and renames the temporary file onto the final path.
// On failure the temporary file is removed.
func (p *PendingFile) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	if p.f != nil {
		if err := p.f.Sync(); err != nil {
			DiscardClose(p.f)
			_ = os.Remove(p.tmp)
			return fmt.Errorf("sync %s: %w", p.tmp, err)
		}
		if err := p.f.Close(); err != nil {
			_ = os.Remove(p.tmp)
			return fmt.Errorf("close %s: %w", p.tmp, err)
		}
	}
	if err := os.Rename(p.tmp, p.final); err != nil {
		_ = os.Remove(p.tmp)
		return fmt.Errorf("commit %s: %w", p.final, err)
	}
	return nil
}

// Abort closes and removes the temporary file.
func (p *PendingFile) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	if p.f != nil {
		DiscardClose(p.f)
	}
	if err := os.Remove(p.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ContextReader wraps r so reads fail once ctx is done.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ReadFrom lets io.Copy hand the source straight to the underlying file,
// which uses copy_file_range where the kernel supports it.
func (p *PendingFile) ReadFrom(r io.Reader) (int64, error) {
	if p.f == nil {
		return 0, errors.New("pending file not open")
	}
	return p.f.ReadFrom(r)
}
