package feed

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// RateStore locates and opens rate history files.
type RateStore interface {
	// Match returns the names matching a doublestar pattern, sorted.
	Match(ctx context.Context, pattern string) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirRates serves rate files from a local directory.
type DirRates struct {
	fsys fs.FS
}

// NewDirRates creates a RateStore rooted at dir.
func NewDirRates(dir string) *DirRates {
	return &DirRates{fsys: os.DirFS(dir)}
}

// NewFSRates creates a RateStore over an arbitrary filesystem.
func NewFSRates(fsys fs.FS) *DirRates {
	return &DirRates{fsys: fsys}
}

func (d *DirRates) Match(_ context.Context, pattern string) ([]string, error) {
	names, err := doublestar.Glob(d.fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("feed: glob %q: %w", pattern, err)
	}
	sort.Strings(names)
	return names, nil
}

func (d *DirRates) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := d.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", name, err)
	}
	return f, nil
}

// globMeta holds the characters that make a doublestar pattern non-literal.
const globMeta = "*?[{\\"

// BlobRates serves rate files from object storage under a key prefix.
type BlobRates struct {
	reader domain.BlobReader
	prefix string
}

// NewBlobRates creates a RateStore reading objects below prefix.
func NewBlobRates(reader domain.BlobReader, prefix string) *BlobRates {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobRates{reader: reader, prefix: prefix}
}

// Match lists objects below the prefix and filters them by pattern. A
// pattern without glob syntax names one object and is checked directly.
func (b *BlobRates) Match(ctx context.Context, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("feed: invalid pattern %q", pattern)
	}
	if !strings.ContainsAny(pattern, globMeta) {
		ok, err := b.reader.Exists(ctx, b.prefix+pattern)
		if err != nil {
			return nil, fmt.Errorf("feed: stat %s: %w", pattern, err)
		}
		if !ok {
			return nil, nil
		}
		return []string{pattern}, nil
	}
	infos, err := b.reader.List(ctx, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("feed: list rates: %w", err)
	}
	var names []string
	for _, info := range infos {
		name := strings.TrimPrefix(info.Path, b.prefix)
		if ok, _ := doublestar.Match(pattern, name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *BlobRates) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := b.reader.Get(ctx, b.prefix+name)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", name, err)
	}
	return rc, nil
}

// LoadRates opens name from store and parses it.
func LoadRates(ctx context.Context, store RateStore, name string) ([]domain.Tick, error) {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ticks, err := ParseRates(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ticks, nil
}
