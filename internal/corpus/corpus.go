// Package corpus defines the document collection and its startup loaders.
// A corpus is loaded exactly once when the process starts, validated at the
// boundary, and never mutated afterwards.
package corpus

import (
	"fmt"

	agerrors "github.com/answergate/answergate/pkg/errors"
)

// Document is a single retrievable text snippet. Documents are immutable
// after load; the rest of the system only ever holds references to them.
type Document struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
}

// Validate checks the collection boundary invariants: non-empty unique ids.
// An empty collection is valid. Any violation wraps ErrMalformedCorpus and
// must prevent the process from serving traffic.
func Validate(docs []Document) error {
	seen := make(map[string]int, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document at position %d has an empty id", agerrors.ErrMalformedCorpus, i)
		}
		if prev, dup := seen[doc.ID]; dup {
			return fmt.Errorf("%w: duplicate document id %q at positions %d and %d", agerrors.ErrMalformedCorpus, doc.ID, prev, i)
		}
		seen[doc.ID] = i
	}
	return nil
}
