package pages

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/common"
)

// Page is one enumerated page image. Immutable once discovered; downstream
// components treat it as read-only.
type Page struct {
	Index int
	Path  string
	Stem  string
}

// Stats aggregates one discovery pass.
type Stats struct {
	Scanned    uint32
	Eligible   uint32
	NoIndex    uint32
	Duplicates uint32
}

// Discover lists eligible page images in dir, ordered ascending by the page
// index parsed from each filename. Filenames without a numeric index are
// logged and excluded, not fatal; so are duplicate indexes (first in lexical
// order wins). Returns common.ErrEmptySource when nothing eligible remains.
func Discover(dir string, logger *slog.Logger) ([]Page, Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read source folder: %w", err)
	}

	var stats Stats
	seen := map[int]string{}
	var out []Page
	for _, e := range entries {
		stats.Scanned++
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		idx, ok := parseIndex(stem)
		if !ok {
			stats.NoIndex++
			logger.Warn("pages.discover.no_index", "file", e.Name())
			continue
		}
		// os.ReadDir sorts by filename, so the kept entry is lexically first
		if kept, dup := seen[idx]; dup {
			stats.Duplicates++
			logger.Warn("pages.discover.duplicate_index", "file", e.Name(), "index", idx, "kept", kept)
			continue
		}
		seen[idx] = e.Name()
		stats.Eligible++
		out = append(out, Page{Index: idx, Path: filepath.Join(dir, e.Name()), Stem: stem})
	}

	if len(out) == 0 {
		return nil, stats, fmt.Errorf("%s: %w", dir, common.ErrEmptySource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	logger.Debug("pages.discover.ok", "dir", dir, "pages", len(out), "scanned", stats.Scanned)
	return out, stats, nil
}

// parseIndex extracts the last run of decimal digits in a filename stem
// ("page_0012" -> 12). Reports false when the stem has none.
func parseIndex(stem string) (int, bool) {
	end := -1
	for i := len(stem) - 1; i >= 0; i-- {
		if stem[i] >= '0' && stem[i] <= '9' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return 0, false
	}
	start := end - 1
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	n, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
