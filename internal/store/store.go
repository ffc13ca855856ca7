// Package store persists per-page text artifacts. An artifact's existence is
// the resumption signal for its page, so writes must never leave a readable
// partial file behind.
package store

import (
	"github.com/pagescribe/pagescribe/internal/pages"
)

// Store maps a page to its persisted artifact. Implementations must be safe
// for concurrent use; workers touch disjoint pages but share the store.
type Store interface {
	// Exists reports whether an artifact is already present for p.
	Exists(p pages.Page) (bool, error)

	// Write persists text as p's artifact. Writing the same page twice
	// overwrites cleanly.
	Write(p pages.Page, text string) error

	// Path returns where p's artifact lives (or would live).
	Path(p pages.Page) string
}
