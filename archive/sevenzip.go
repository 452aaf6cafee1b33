package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ytwritergod/archivetoziptest/types"
)

// DefaultSevenZipBinary is the 7-Zip command looked up on PATH.
const DefaultSevenZipBinary = "7z"

// maxToolOutput bounds the diagnostic output kept from a failed 7z run.
const maxToolOutput = 2048

// SevenZipBackend writes 7z archives by running the 7-Zip command line tool.
// With a password both contents and headers are encrypted (-mhe=on), so
// entry names are hidden too.
//
// The tool runs inside the staging directory and receives bare entry names,
// so entries must already sit in one directory under their archive names.
type SevenZipBackend struct {
	binary string
}

// NewSevenZipBackend creates a backend running binary (name or path).
func NewSevenZipBackend(binary string) *SevenZipBackend {
	if binary == "" {
		binary = DefaultSevenZipBinary
	}
	return &SevenZipBackend{binary: binary}
}

// Format implements Backend.
func (*SevenZipBackend) Format() types.Format { return types.FormatSevenZip }

// SupportsPassword implements Backend.
func (*SevenZipBackend) SupportsPassword() bool { return true }

// Available reports whether the configured binary can be found.
func (s *SevenZipBackend) Available() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Write implements Backend.
func (s *SevenZipBackend) Write(ctx context.Context, dst string, entries []Entry, password string) error {
	if len(entries) == 0 {
		return types.CompressionError("nothing to archive", nil)
	}

	dir := filepath.Dir(entries[0].Path)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if filepath.Dir(e.Path) != dir || filepath.Base(e.Path) != e.Name {
			return types.CompressionError("7z entries must share one staging directory",
				fmt.Errorf("entry %q at %s", e.Name, e.Path))
		}
		names = append(names, e.Name)
	}

	bin, err := exec.LookPath(s.binary)
	if err != nil {
		return types.CompressionError("7z is not installed on the server", err)
	}

	absDst, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dst, err)
	}

	cmd := exec.CommandContext(ctx, bin, sevenZipArgs(absDst, names, password)...)
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return types.CompressionError("7z failed",
				fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), tail(output.String(), password)))
		}
		return types.CompressionError("7z could not start", err)
	}
	return nil
}

// sevenZipArgs builds the 7z command line. "--" stops switch parsing so
// entry names beginning with "-" or "@" are taken literally.
func sevenZipArgs(dst string, names []string, password string) []string {
	args := []string{"a", "-t7z", "-y", "-bd", "-mx=5"}
	if password != "" {
		args = append(args, "-p"+password, "-mhe=on")
	}
	args = append(args, "--", dst)
	return append(args, names...)
}

// tail returns the end of tool output with any echo of the password removed.
func tail(s, password string) string {
	if password != "" {
		s = strings.ReplaceAll(s, password, "***")
	}
	s = strings.TrimSpace(s)
	if len(s) > maxToolOutput {
		s = s[len(s)-maxToolOutput:]
	}
	return s
}

// Verify SevenZipBackend implements Backend.
var _ Backend = (*SevenZipBackend)(nil)
