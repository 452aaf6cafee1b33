// Package splitter cuts an artifact into fixed-size, order-numbered parts
// and reassembles them.
//
// Parts are named <source>.partNNN. The suffix width is fixed per split
// (at least three digits) so lexical order equals numeric order.
// Concatenating the parts in order reproduces the source byte-for-byte;
// no framing is added.
package splitter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/types"
)

// DefaultLimit is the default part size (2 GiB).
const DefaultLimit int64 = 2 * 1024 * 1024 * 1024

// minSuffixWidth is the minimum number of digits in a part suffix.
const minSuffixWidth = 3

// Splitter lazily produces the parts of one source file.
// It is finite and not restartable: once Next returns an error (including
// io.EOF) every later call returns the same error.
// Only one part is open at a time and bytes are streamed, never buffered whole.
type Splitter struct {
	src   *os.File
	dir   string
	base  string
	limit int64
	size  int64
	total int
	width int
	next  int
	err   error
}

// New opens sourcePath for splitting into parts of at most limit bytes.
// Parts are written next to the source.
func New(sourcePath string, limit int64) (*Splitter, error) {
	if limit <= 0 {
		return nil, types.SplitError("part size must be positive", fmt.Errorf("limit %d", limit))
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, types.SplitError("cannot open artifact", err)
	}
	info, err := f.Stat()
	if err != nil {
		iox.DiscardClose(f)
		return nil, types.SplitError("cannot stat artifact", err)
	}
	if info.IsDir() {
		iox.DiscardClose(f)
		return nil, types.SplitError("artifact is a directory", fmt.Errorf("%s", sourcePath))
	}

	total := Count(info.Size(), limit)
	return &Splitter{
		src:   f,
		dir:   filepath.Dir(sourcePath),
		base:  filepath.Base(sourcePath),
		limit: limit,
		size:  info.Size(),
		total: total,
		width: SuffixWidth(total),
		next:  1,
	}, nil
}

// Total returns the number of parts the source produces.
func (s *Splitter) Total() int { return s.total }

// Next writes and returns the next part.
// Returns io.EOF after the last part.
//
// A part only becomes visible under its final name once it is completely
// written; a failed part leaves nothing behind.
func (s *Splitter) Next() (types.Part, error) {
	if s.err != nil {
		return types.Part{}, s.err
	}
	if s.next > s.total {
		s.err = io.EOF
		return types.Part{}, s.err
	}

	seq := s.next
	want := s.size - int64(seq-1)*s.limit
	if want > s.limit {
		want = s.limit
	}

	path := filepath.Join(s.dir, PartName(s.base, seq, s.width))
	p, err := iox.CreatePending(path)
	if err != nil {
		s.err = types.SplitError("cannot create part", err)
		return types.Part{}, s.err
	}

	n, err := io.CopyN(p, s.src, want)
	if err != nil {
		iox.DiscardErr(p.Abort)
		s.err = types.SplitError(fmt.Sprintf("short read on part %d", seq), err)
		return types.Part{}, s.err
	}

	if seq == s.total {
		// The source must end exactly where the last part ends.
		var probe [1]byte
		if extra, _ := s.src.Read(probe[:]); extra > 0 {
			iox.DiscardErr(p.Abort)
			s.err = types.SplitError("artifact grew while splitting", errors.New("trailing bytes after last part"))
			return types.Part{}, s.err
		}
	}

	if err := p.Commit(); err != nil {
		s.err = types.SplitError(fmt.Sprintf("cannot commit part %d", seq), err)
		return types.Part{}, s.err
	}

	s.next++
	return types.Part{Seq: seq, Total: s.total, Path: path, Size: n}, nil
}

// Close releases the source file. Parts already produced are left in place.
func (s *Splitter) Close() error {
	return s.src.Close()
}

// Split eagerly splits sourcePath and returns every part in order.
// On failure every part produced so far is removed.
func Split(sourcePath string, limit int64) ([]types.Part, error) {
	s, err := New(sourcePath, limit)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(s)

	parts := make([]types.Part, 0, s.Total())
	for {
		part, err := s.Next()
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if err != nil {
			for _, p := range parts {
				_ = os.Remove(p.Path)
			}
			return nil, err
		}
		parts = append(parts, part)
	}
}

// Reassemble streams the parts, in the given order, into w.
func Reassemble(w io.Writer, partPaths []string) error {
	for _, path := range partPaths {
		if err := appendPart(w, path); err != nil {
			return err
		}
	}
	return nil
}

func appendPart(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open part: %w", err)
	}
	defer iox.DiscardClose(f)

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy part %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Join reassembles the parts into dst. dst only appears once complete.
func Join(dst string, partPaths []string) error {
	p, err := iox.CreatePending(dst)
	if err != nil {
		return err
	}
	if err := Reassemble(p, partPaths); err != nil {
		iox.DiscardErr(p.Abort)
		return err
	}
	return p.Commit()
}

// Count returns the number of parts a source of size bytes splits into.
// A zero-length source yields exactly one (empty) part.
func Count(size, limit int64) int {
	if size == 0 {
		return 1
	}
	n := size / limit
	if size%limit != 0 {
		n++
	}
	return int(n)
}

// SuffixWidth returns the zero-padded digit width for total parts.
func SuffixWidth(total int) int {
	w := len(strconv.Itoa(total))
	if w < minSuffixWidth {
		return minSuffixWidth
	}
	return w
}

// PartName returns the file name of part seq.
func PartName(base string, seq, width int) string {
	return fmt.Sprintf("%s.part%0*d", base, width, seq)
}

// SortParts orders part paths by sequence. Fixed-width suffixes make this
// a plain lexical sort.
func SortParts(paths []string) {
	sort.Strings(paths)
}
