package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/yeka/zip"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

// ZipBackend writes deflated zip archives. With a password every entry is
// AES-256 encrypted (WinZip AE-2), readable by 7-Zip, WinZip and unzip tools
// that support AES.
type ZipBackend struct{}

// NewZipBackend creates a zip backend.
func NewZipBackend() *ZipBackend { return &ZipBackend{} }

// Format implements Backend.
func (*ZipBackend) Format() types.Format { return types.FormatZip }

// SupportsPassword implements Backend.
func (*ZipBackend) SupportsPassword() bool { return true }

// Write implements Backend. File contents are streamed, never loaded whole.
func (z *ZipBackend) Write(ctx context.Context, dst string, entries []Entry, password string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer iox.DiscardClose(out)

	w := zip.NewWriter(out)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := z.addEntry(ctx, w, e, password); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync zip: %w", err)
	}
	return out.Close()
}

func (z *ZipBackend) addEntry(ctx context.Context, w *zip.Writer, e Entry, password string) error {
	src, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Name, err)
	}
	defer iox.DiscardClose(src)

	var dst io.Writer
	if password != "" {
		dst, err = w.Encrypt(e.Name, password, zip.AES256Encryption)
	} else {
		info, statErr := src.Stat()
		if statErr != nil {
			return fmt.Errorf("stat %s: %w", e.Name, statErr)
		}
		hdr, hdrErr := zip.FileInfoHeader(info)
		if hdrErr != nil {
			return fmt.Errorf("header %s: %w", e.Name, hdrErr)
		}
		hdr.Name = e.Name
		hdr.Method = zip.Deflate
		dst, err = w.CreateHeader(hdr)
	}
	if err != nil {
		return fmt.Errorf("add %s: %w", e.Name, err)
	}

	if _, err := io.Copy(dst, iox.ContextReader(ctx, src)); err != nil {
		return fmt.Errorf("compress %s: %w", e.Name, err)
	}
	return nil
}

// Verify ZipBackend implements Backend.
var _ Backend = (*ZipBackend)(nil)
