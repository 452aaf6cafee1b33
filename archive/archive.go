// Package archive builds one password-optional archive from staged files.
//
// Builder dispatches to a Backend per format. Every entry is stored flat,
// under its staged name, at the archive root. A password is applied to the
// whole archive; a backend that cannot honor one fails the build instead of
// silently writing plaintext.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

// Entry is one file to place in an archive.
type Entry struct {
	// Name is the flat entry name inside the archive.
	Name string
	// Path is the source file on disk.
	Path string
}

// Backend is an opaque compression capability for one format.
type Backend interface {
	// Format is the container format the backend writes.
	Format() types.Format
	// SupportsPassword reports whether Write can protect the archive.
	SupportsPassword() bool
	// Write creates dst (which must not exist) containing entries.
	// password is empty for an unprotected archive.
	Write(ctx context.Context, dst string, entries []Entry, password string) error
}

// Builder produces archives through registered backends.
type Builder struct {
	backends map[types.Format]Backend
}

// NewBuilder creates a builder. Later backends replace earlier ones for the
// same format.
func NewBuilder(backends ...Backend) *Builder {
	b := &Builder{backends: make(map[types.Format]Backend, len(backends))}
	for _, be := range backends {
		b.backends[be.Format()] = be
	}
	return b
}

// Supports reports whether a backend is registered for format.
func (b *Builder) Supports(format types.Format) bool {
	_, ok := b.backends[format]
	return ok
}

// Build writes files into a single archive at dst.
//
// Either a complete archive exists at dst afterwards, or nothing does and a
// compression error is returned. Inputs are never deleted.
func (b *Builder) Build(ctx context.Context, files []types.StagedFile, format types.Format, password, dst string) (*types.Artifact, error) {
	if len(files) == 0 {
		return nil, types.CompressionError("nothing to archive", nil)
	}
	backend, ok := b.backends[format]
	if !ok {
		return nil, types.CompressionError(fmt.Sprintf("format %q is not available", format), nil)
	}
	if password != "" && !backend.SupportsPassword() {
		return nil, types.CompressionError(
			fmt.Sprintf("%s archives cannot be password protected here", format.Label()), nil)
	}

	entries, err := Entries(files)
	if err != nil {
		return nil, err
	}

	pending := iox.ReservePending(dst)
	// A crashed earlier attempt may have left a temporary file behind.
	_ = os.Remove(pending.TempPath())

	if err := backend.Write(ctx, pending.TempPath(), entries, password); err != nil {
		iox.DiscardErr(pending.Abort)
		return nil, asCompressionError(err)
	}
	if err := pending.Commit(); err != nil {
		return nil, types.CompressionError("cannot finalize archive", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, types.CompressionError("archive vanished after build", err)
	}
	return &types.Artifact{Path: dst, Size: info.Size(), Format: format}, nil
}

// Entries maps staged files to flat archive entries, rejecting name clashes.
func Entries(files []types.StagedFile) ([]Entry, error) {
	entries := make([]Entry, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := EntryName(f)
		if name == "" {
			return nil, types.CompressionError(fmt.Sprintf("file %q has no usable name", f.DisplayName), nil)
		}
		if _, dup := seen[name]; dup {
			return nil, types.CompressionError(fmt.Sprintf("duplicate entry name %q", name), nil)
		}
		seen[name] = struct{}{}
		entries = append(entries, Entry{Name: name, Path: f.Path})
	}
	return entries, nil
}

// EntryName is the flat name a staged file gets inside an archive.
// Directory components are always dropped.
func EntryName(f types.StagedFile) string {
	name := f.Name
	if name == "" {
		name = f.DisplayName
	}
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

func asCompressionError(err error) error {
	if errors.Is(err, types.ErrCompression) {
		return err
	}
	return types.CompressionError("archive backend failed", err)
}
